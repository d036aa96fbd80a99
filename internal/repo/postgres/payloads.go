package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seqportal/runhub/internal/domain"
)

type PayloadStore struct {
	db DB
}

func NewPayloadStore(db DB) *PayloadStore {
	if db == nil {
		return nil
	}
	return &PayloadStore{db: db}
}

func (s *PayloadStore) CreatePayload(ctx context.Context, p domain.Payload) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("payload store not initialized")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	var data any
	if len(p.Data) > 0 {
		data = []byte(p.Data)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO payloads (
			payload_id,
			payload_ref_id,
			version,
			data,
			content_hash,
			object_key
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(p.ID),
		strings.TrimSpace(p.RefID),
		strings.TrimSpace(p.Version),
		data,
		nullIfEmpty(p.ContentHash),
		nullIfEmpty(p.ObjectKey),
	)
	if err := handleConflict(err); err != nil {
		return fmt.Errorf("insert payload: %w", err)
	}
	return nil
}

func (s *PayloadStore) GetPayload(ctx context.Context, id string) (domain.Payload, error) {
	if s == nil || s.db == nil {
		return domain.Payload{}, fmt.Errorf("payload store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT payload_id, payload_ref_id, version, data, content_hash, object_key
		 FROM payloads
		 WHERE payload_id = $1`,
		strings.TrimSpace(id),
	)
	var (
		p           domain.Payload
		data        []byte
		contentHash sql.NullString
		objectKey   sql.NullString
	)
	err := row.Scan(&p.ID, &p.RefID, &p.Version, &data, &contentHash, &objectKey)
	if err != nil {
		return domain.Payload{}, handleNotFound(err)
	}
	if len(data) > 0 {
		p.Data = data
	}
	p.ContentHash = stringOrEmpty(contentHash)
	p.ObjectKey = stringOrEmpty(objectKey)
	return p, nil
}
