package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Object metadata keys.
const (
	metaRecordType    = "recordType"
	metaPayloadHash   = "payloadHash"
	metaUpdatedAt     = "updatedAt"
	metaSchemaVersion = "schemaVersion"
)

// GCSClient stores each record as one object in a Google Cloud Storage
// bucket. The object generation is the record Version.
type GCSClient struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSClient connects to bucket. credentialsFile may be empty, in which
// case application default credentials are used.
func NewGCSClient(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSClient{client: client, bucket: bucket, prefix: prefix}, nil
}

func (c *GCSClient) Close() error {
	return c.client.Close()
}

func (c *GCSClient) object(name string) *storage.ObjectHandle {
	return c.client.Bucket(c.bucket).Object(c.prefix + name + ".json")
}

func (c *GCSClient) Fetch(ctx context.Context, name string) (*Record, error) {
	obj := c.object(name)
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	rec, err := recordFromAttrs(name, attrs)
	if err != nil {
		return nil, err
	}

	// Read the generation we just described so metadata and payload agree.
	r, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer r.Close()
	rec.Payload, err = io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return rec, nil
}

func (c *GCSClient) Save(ctx context.Context, rec *Record) (*Record, error) {
	cond := storage.Conditions{DoesNotExist: true}
	if rec.Version != 0 {
		cond = storage.Conditions{GenerationMatch: rec.Version}
	}

	w := c.object(rec.Name).If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	w.Metadata = metadataOf(rec)

	if _, err := w.Write(rec.Payload); err != nil {
		w.Close()
		return nil, c.saveError(ctx, rec.Name, err)
	}
	if err := w.Close(); err != nil {
		return nil, c.saveError(ctx, rec.Name, err)
	}

	saved, err := recordFromAttrs(rec.Name, w.Attrs())
	if err != nil {
		return nil, err
	}
	saved.Payload = slices.Clone(rec.Payload)
	return saved, nil
}

// saveError turns a failed precondition into a ConflictError carrying the
// current server copy.
func (c *GCSClient) saveError(ctx context.Context, name string, err error) error {
	if !isPreconditionFailed(err) {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	server, ferr := c.Fetch(ctx, name)
	switch {
	case errors.Is(ferr, ErrNotFound):
		return &ConflictError{Name: name}
	case ferr != nil:
		return ferr
	}
	return &ConflictError{Name: name, Server: server}
}

func isPreconditionFailed(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed
}

func metadataOf(rec *Record) map[string]string {
	return map[string]string{
		metaRecordType:    RecordType,
		metaPayloadHash:   rec.PayloadHash,
		metaUpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		metaSchemaVersion: strconv.Itoa(rec.SchemaVersion),
	}
}

func recordFromAttrs(name string, attrs *storage.ObjectAttrs) (*Record, error) {
	if attrs == nil {
		return nil, fmt.Errorf("no attributes for %s", name)
	}
	md := attrs.Metadata
	if t := md[metaRecordType]; t != RecordType {
		return nil, fmt.Errorf("record %s has type %q, incompatible with schema type %s", name, t, RecordType)
	}
	rec := &Record{
		Type:        RecordType,
		Name:        name,
		Version:     attrs.Generation,
		PayloadHash: md[metaPayloadHash],
		UpdatedAt:   attrs.Updated.UTC(),
	}
	if v, ok := md[metaUpdatedAt]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("record %s has invalid %s: %w", name, metaUpdatedAt, err)
		}
		rec.UpdatedAt = t
	}
	if v, ok := md[metaSchemaVersion]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("record %s has invalid %s: %w", name, metaSchemaVersion, err)
		}
		rec.SchemaVersion = n
	}
	return rec, nil
}
