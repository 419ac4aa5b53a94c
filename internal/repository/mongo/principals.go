package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/repository"
)

// principalDocument mirrors the users collection layout shared with the profile service.
type principalDocument struct {
	ID                string    `bson:"_id"`
	Name              string    `bson:"name"`
	Email             string    `bson:"email"`
	Password          string    `bson:"password"`
	Phone             string    `bson:"phone,omitempty"`
	Username          string    `bson:"username,omitempty"`
	Bio               string    `bson:"bio,omitempty"`
	Address           string    `bson:"address,omitempty"`
	Role              string    `bson:"role"`
	ProfilePicture    string    `bson:"profilePicture,omitempty"`
	RefreshToken      *string   `bson:"refreshToken"`
	CreatedAt         time.Time `bson:"createdAt"`
	Notifications     bool      `bson:"notifications"`
	AccountVisibility string    `bson:"accountVisibility"`
	AccountStatus     string    `bson:"accountStatus"`
}

func toDocument(p domain.Principal) principalDocument {
	doc := principalDocument{
		ID:                p.ID,
		Name:              p.Name,
		Email:             p.Email,
		Password:          p.PasswordHash,
		Phone:             p.Phone,
		Username:          p.Username,
		Bio:               p.Bio,
		Address:           p.Address,
		Role:              p.Role,
		ProfilePicture:    p.Picture,
		CreatedAt:         p.CreatedAt,
		Notifications:     p.Notifications,
		AccountVisibility: string(p.AccountVisibility),
		AccountStatus:     string(p.AccountStatus),
	}
	if p.RefreshToken != "" {
		token := p.RefreshToken
		doc.RefreshToken = &token
	}
	return doc
}

func (d principalDocument) toDomain() domain.Principal {
	p := domain.Principal{
		ID:                d.ID,
		Email:             d.Email,
		PasswordHash:      d.Password,
		Name:              d.Name,
		Username:          d.Username,
		Phone:             d.Phone,
		Bio:               d.Bio,
		Address:           d.Address,
		Picture:           d.ProfilePicture,
		Role:              d.Role,
		Notifications:     d.Notifications,
		AccountVisibility: domain.AccountVisibility(d.AccountVisibility),
		AccountStatus:     domain.AccountStatus(d.AccountStatus),
		CreatedAt:         d.CreatedAt.UTC(),
	}
	if d.RefreshToken != nil {
		p.RefreshToken = *d.RefreshToken
	}
	return p
}

// collection is the part of the driver collection the repository relies on.
// Errors come back as the driver produced them.
type collection interface {
	InsertOne(ctx context.Context, document any) error
	FindOne(ctx context.Context, filter any, out any) error
	UpdateOne(ctx context.Context, filter, update any) (matched int64, err error)
	Indexes() mongo.IndexView
}

type driverCollection struct {
	*mongo.Collection
}

func (c driverCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.Collection.InsertOne(ctx, document)
	return err
}

func (c driverCollection) FindOne(ctx context.Context, filter any, out any) error {
	return c.Collection.FindOne(ctx, filter).Decode(out)
}

func (c driverCollection) UpdateOne(ctx context.Context, filter, update any) (int64, error) {
	res, err := c.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

// PrincipalRepository implements port.PrincipalRepository on a MongoDB collection.
type PrincipalRepository struct {
	coll collection
}

// NewPrincipalRepository wraps the collection holding principal documents.
func NewPrincipalRepository(coll *mongo.Collection) *PrincipalRepository {
	return &PrincipalRepository{coll: driverCollection{coll}}
}

// EnsureIndexes creates the unique email index and the sparse unique username index.
func (r *PrincipalRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create principal indexes: %w", err)
	}
	return nil
}

// Create inserts a principal document.
func (r *PrincipalRepository) Create(ctx context.Context, p domain.Principal) error {
	if err := r.coll.InsertOne(ctx, toDocument(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

// GetByID retrieves a principal by identifier.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetByEmail retrieves a principal by exact email.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// SetRefreshToken stores the outstanding refresh token, nulling the field when token is empty.
func (r *PrincipalRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	var value any
	if token != "" {
		value = token
	}
	return r.updateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "refreshToken", Value: value}})
}

// UpdatePasswordByEmail replaces the stored password hash.
func (r *PrincipalRepository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	return r.updateOne(ctx, bson.D{{Key: "email", Value: email}}, bson.D{{Key: "password", Value: passwordHash}})
}

func (r *PrincipalRepository) findOne(ctx context.Context, filter bson.D) (*domain.Principal, error) {
	var doc principalDocument
	if err := r.coll.FindOne(ctx, filter, &doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}

	p := doc.toDomain()
	return &p, nil
}

func (r *PrincipalRepository) updateOne(ctx context.Context, filter, set bson.D) error {
	matched, err := r.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if matched == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
