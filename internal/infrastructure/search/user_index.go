package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
)

const (
	requestTimeout = 3 * time.Second
	maxSearchSize  = 50
)

// userDoc is what the directory index stores. Credentials never leave the database.
type userDoc struct {
	ID              string `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Verified        bool   `json:"verified"`
	ProfileImageRef string `json:"profile_image_ref,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toDoc(u *entity.User) userDoc {
	return userDoc{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Verified:        u.Verified,
		ProfileImageRef: u.ProfileImageRef,
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (d userDoc) user() entity.User {
	u := entity.User{
		ID:              d.ID,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		Verified:        d.Verified,
		ProfileImageRef: d.ProfileImageRef,
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
	return u
}

// UserIndex keeps a searchable copy of the user directory in Elasticsearch.
type UserIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewUserIndex(es *elasticsearch.Client, index string) *UserIndex {
	return &UserIndex{es: es, index: index}
}

func (x *UserIndex) Index(ctx context.Context, u *entity.User) error {
	b, err := json.Marshal(toDoc(u))
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := esapi.IndexRequest{Index: x.index, DocumentID: u.ID, Body: bytes.NewReader(b), Refresh: "false"}
	res, err := req.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es index %s: %w", u.ID, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("es index %s: %s", u.ID, res.Status())
	}
	return nil
}

// Remove deletes the user's document; a missing document is not an error.
func (x *UserIndex) Remove(ctx context.Context, id string) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := esapi.DeleteRequest{Index: x.index, DocumentID: id}
	res, err := req.Do(c, x.es)
	if err != nil {
		return fmt.Errorf("es delete %s: %w", id, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("es delete %s: %s", id, res.Status())
	}
	return nil
}

// Search runs a multi_match over email and names.
func (x *UserIndex) Search(ctx context.Context, q string, size int) ([]entity.User, error) {
	if size <= 0 || size > maxSearchSize {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     q,
				"fields":    []string{"email^2", "first_name", "last_name"},
				"fuzziness": "AUTO",
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := x.es.Search(
		x.es.Search.WithContext(c),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, fmt.Errorf("es search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("es search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source userDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode es search: %w", err)
	}

	out := make([]entity.User, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source.user())
	}
	return out, nil
}
