package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// FeatureRepository reads the feature catalog that intake validates against.
type FeatureRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Feature, error)
	Upsert(ctx context.Context, feature *domain.Feature) error
}

type featureRepository struct {
	pool *pgxpool.Pool
}

// NewFeatureRepository constructs repository.
func NewFeatureRepository(pool *pgxpool.Pool) FeatureRepository {
	return &featureRepository{pool: pool}
}

func (r *featureRepository) GetByID(ctx context.Context, id string) (*domain.Feature, error) {
	const query = `SELECT id, key, name, icon, form_schema, categories FROM features WHERE id=$1`
	var feature domain.Feature
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&feature.ID,
		&feature.Key,
		&feature.Name,
		&feature.Icon,
		&feature.FormSchema,
		&feature.Categories,
	); err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *featureRepository) Upsert(ctx context.Context, feature *domain.Feature) error {
	const query = `
        INSERT INTO features (id, key, name, icon, form_schema, categories)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET key=EXCLUDED.key, name=EXCLUDED.name, icon=EXCLUDED.icon,
            form_schema=EXCLUDED.form_schema, categories=EXCLUDED.categories`
	schema := feature.FormSchema
	if schema == nil {
		schema = []domain.FormField{}
	}
	categories := feature.Categories
	if categories == nil {
		categories = []string{}
	}
	_, err := r.pool.Exec(ctx, query, feature.ID, feature.Key, feature.Name, feature.Icon, schema, categories)
	return err
}
