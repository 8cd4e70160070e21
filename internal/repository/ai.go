package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AIRepository struct {
	db *pgxpool.Pool
}

// NewAIRepository создает репозиторий для AI-запросов.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

// LogRequest сохраняет лог AI-запроса.
func (r *AIRepository) LogRequest(ctx context.Context, log AIRequestLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (owner_id, request_type, provider, model, prompt, request_payload, response_payload, raw_response, success, error_message)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::jsonb, NULLIF($7, '')::jsonb, $8, $9, $10)`,
		log.OwnerID,
		log.RequestType,
		log.Provider,
		log.Model,
		log.Prompt,
		string(log.RequestPayload),
		string(log.ResponsePayload),
		log.RawResponse,
		log.Success,
		log.ErrorMessage,
	)
	return err
}
