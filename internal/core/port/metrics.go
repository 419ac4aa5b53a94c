package port

// OperationRecorder counts identity operation outcomes.
type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}
