package firestore

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/storeforge/api/internal/platform/firestore"
	"github.com/storeforge/api/internal/platform/pagination"
)

// notFoundError produces an error the platform wrapper categorises as not-found.
func notFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

// txGet reads the document through the ambient transaction when one is
// present, falling back to a direct read otherwise.
func txGet(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

// txCreate writes a new document through the ambient transaction when one is
// present. Duplicate IDs surface as AlreadyExists either way.
func txCreate(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Create(ref, data)
	}
	_, err := ref.Create(ctx, data)
	return err
}

// txSet upserts the document through the ambient transaction when one is present.
func txSet(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Set(ref, data)
	}
	_, err := ref.Set(ctx, data)
	return err
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func normalizeStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normaliseStatuses(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func encodeListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	raw, _ := cursor.StartAfter[0].(string)
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok || docID == "" {
		return time.Time{}, "", pagination.ErrInvalidPageToken
	}
	return ts, docID, nil
}
