package cloudqueue

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/option"

	"github.com/printbridge/agent/internal/model"
)

// FirestoreStore is a DocumentStore backed by the Firestore v1 REST API,
// built the way a Google Cloud REST client usually is: a generated service
// constructor plus option.WithCredentialsFile for a service-account key.
// Firestore's tagged Value representation (stringValue/integerValue/
// timestampValue/nullValue/mapValue) is the wire format used for every
// field value read or written here.
type FirestoreStore struct {
	svc       *firestore.Service
	projectID string
}

// NewFirestoreStore builds a FirestoreStore for projectID. credentialsPath
// may be empty, in which case Application Default Credentials are used.
func NewFirestoreStore(ctx context.Context, projectID, credentialsPath string) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	svc, err := firestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{svc: svc, projectID: projectID}, nil
}

func (s *FirestoreStore) documentsService() *firestore.ProjectsDatabasesDocumentsService {
	return s.svc.Projects.Databases.Documents
}

func (s *FirestoreStore) documentName(relativePath string) string {
	return fmt.Sprintf("projects/%s/databases/(default)/documents/%s", s.projectID, relativePath)
}

func (s *FirestoreStore) parent(collectionPath string) (parent, collectionID string) {
	idx := lastSlash(collectionPath)
	if idx < 0 {
		return fmt.Sprintf("projects/%s/databases/(default)/documents", s.projectID), collectionPath
	}
	return s.documentName(collectionPath[:idx]), collectionPath[idx+1:]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// ListQueued lists documents in collectionPath's collection and filters to
// status=queued client-side, capped at limit. Firestore's List endpoint has
// no equality filter of its own (that requires the heavier structured-query
// RunQuery call); for a per-restaurant queue capped at spec's own "up to 20
// per poll" this simpler, safer List+filter is sufficient and keeps the
// client code small. A 404 (collection/database not found) yields an empty
// list, not an error.
func (s *FirestoreStore) ListQueued(ctx context.Context, collectionPath string, limit int) ([]model.Job, error) {
	parent, collectionID := s.parent(collectionPath)

	call := s.documentsService().List(parent, collectionID).
		PageSize(int64(maxInt(limit*4, 20))). // over-fetch since we filter client-side
		Context(ctx)

	resp, err := call.Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []model.Job
	for _, doc := range resp.Documents {
		job, err := documentToJob(doc)
		if err != nil {
			continue // malformed document: skip rather than fail the whole poll
		}
		if job.Status != model.JobQueued {
			continue
		}
		jobs = append(jobs, job)
		if len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (s *FirestoreStore) Get(ctx context.Context, docPath string) (model.Job, bool, error) {
	doc, err := s.documentsService().Get(s.documentName(docPath)).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return model.Job{}, false, nil
		}
		return model.Job{}, false, err
	}
	job, err := documentToJob(doc)
	if err != nil {
		return model.Job{}, false, err
	}
	return job, true, nil
}

func (s *FirestoreStore) Patch(ctx context.Context, docPath string, fields map[string]any, mask []string) error {
	doc := &firestore.Document{Fields: map[string]firestore.Value{}}
	for k, v := range fields {
		doc.Fields[k] = toValue(v)
	}

	call := s.documentsService().Patch(s.documentName(docPath), doc).Context(ctx)
	call = call.UpdateMaskFieldPaths(mask...)
	_, err := call.Do()
	return err
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- tagged-value conversion -------------------------------------------------

func toValue(v any) firestore.Value {
	switch t := v.(type) {
	case nil:
		return firestore.Value{NullValue: "NULL_VALUE"}
	case string:
		return firestore.Value{StringValue: t}
	case int:
		return firestore.Value{IntegerValue: int64(t)}
	case int64:
		return firestore.Value{IntegerValue: t}
	case time.Time:
		return firestore.Value{TimestampValue: t.UTC().Format(time.RFC3339Nano)}
	case []byte:
		return firestore.Value{BytesValue: base64.StdEncoding.EncodeToString(t)}
	case map[string]any:
		m := &firestore.MapValue{Fields: map[string]firestore.Value{}}
		for k, sub := range t {
			m.Fields[k] = toValue(sub)
		}
		return firestore.Value{MapValue: m}
	default:
		return firestore.Value{StringValue: fmt.Sprintf("%v", t)}
	}
}

func stringField(fields map[string]firestore.Value, key string) string {
	if v, ok := fields[key]; ok {
		return v.StringValue
	}
	return ""
}

func intField(fields map[string]firestore.Value, key string, def int) int {
	if v, ok := fields[key]; ok && v.IntegerValue != 0 {
		return int(v.IntegerValue)
	}
	return def
}

func timeField(fields map[string]firestore.Value, key string) time.Time {
	if v, ok := fields[key]; ok && v.TimestampValue != "" {
		if t, err := time.Parse(time.RFC3339Nano, v.TimestampValue); err == nil {
			return t
		}
	}
	return time.Time{}
}

func bytesField(fields map[string]firestore.Value, key string) []byte {
	if v, ok := fields[key]; ok && v.BytesValue != "" {
		b, _ := base64.StdEncoding.DecodeString(v.BytesValue)
		return b
	}
	return nil
}

func documentToJob(doc *firestore.Document) (model.Job, error) {
	f := doc.Fields
	id := docIDFromName(doc.Name)

	target := model.JobTarget{}
	if tv, ok := f["target"]; ok && tv.MapValue != nil {
		tf := tv.MapValue.Fields
		target.Kind = model.TargetKind(stringField(tf, "type"))
		target.IP = stringField(tf, "ip")
		target.Port = intField(tf, "port", model.DefaultLANPort)
		target.PrinterName = stringField(tf, "printerName")
	}

	return model.Job{
		ID:            id,
		Status:        model.JobStatus(stringField(f, "status")),
		Target:        target,
		Payload:       bytesField(f, "payload"),
		PaperWidth:    intField(f, "paperWidth", 0),
		Attempts:      intField(f, "attempts", 0),
		MaxAttempts:   intField(f, "maxAttempts", model.DefaultMaxAttempts),
		OrderID:       stringField(f, "orderId"),
		Error:         stringField(f, "error"),
		ClaimedBy:     stringField(f, "claimedBy"),
		ClaimedByName: stringField(f, "claimedByName"),
		ClaimedAt:     timeField(f, "claimedAt"),
		PrintedAt:     timeField(f, "printedAt"),
	}, nil
}

func docIDFromName(name string) string {
	idx := lastSlash(name)
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}
