package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShriAmogh/artikate-assignment/internal/core"
	"github.com/ShriAmogh/artikate-assignment/internal/core/queue"
	"github.com/ShriAmogh/artikate-assignment/internal/ingest"
	"github.com/ShriAmogh/artikate-assignment/internal/models"
	"github.com/ShriAmogh/artikate-assignment/internal/retrieve"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB implements core.DbClient in memory.
type fakeDB struct {
	mu        sync.Mutex
	users     map[string]*models.User
	documents map[string]*models.Document
	jobs      map[string]*models.IngestionJob
	vectors   map[string]map[string]storedChunk // collection -> id -> chunk
	progress  []int
}

type storedChunk struct {
	document string
	metadata map[string]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     make(map[string]*models.User),
		documents: make(map[string]*models.Document),
		jobs:      make(map[string]*models.IngestionJob),
		vectors:   make(map[string]map[string]storedChunk),
	}
}

func (f *fakeDB) CreateUser(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.Email] = u
	return nil
}

func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[email], nil
}

func (f *fakeDB) CreateDocument(ctx context.Context, d *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.documents[d.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents[id], nil
}

func (f *fakeDB) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.documents {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDB) UpdateDocumentStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[id]; ok {
		d.Status = status
	}
	return nil
}

func (f *fakeDB) Upsert(ctx context.Context, collection string, ids []string, embeddings [][]float32, metadatas []map[string]string, documents []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	coll, ok := f.vectors[collection]
	if !ok {
		coll = make(map[string]storedChunk)
		f.vectors[collection] = coll
	}
	for i, id := range ids {
		coll[id] = storedChunk{document: documents[i], metadata: metadatas[i]}
	}
	return nil
}

func (f *fakeDB) Query(ctx context.Context, collection string, embedding []float32, nResults int, typeFilter string) (*core.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &core.QueryResult{}
	for id, c := range f.vectors[collection] {
		if typeFilter != "" && c.metadata["type"] != typeFilter {
			continue
		}
		res.IDs = append(res.IDs, id)
		res.Documents = append(res.Documents, c.document)
		res.Metadatas = append(res.Metadatas, c.metadata)
		res.Distances = append(res.Distances, 0.1)
		if len(res.IDs) == nResults {
			break
		}
	}
	return res, nil
}

func (f *fakeDB) Count(ctx context.Context, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors[collection]), nil
}

func (f *fakeDB) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeDB) SetJobRunning(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = models.JobRunning
	return nil
}

func (f *fakeDB) SetJobProgress(ctx context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Progress = progress
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeDB) FinishJob(ctx context.Context, id, status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.Message = message
	if status == models.JobCompleted {
		job.Progress = 100
	}
	return nil
}

func (f *fakeDB) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeDB) Close() error { return nil }

// fakeObjects serves uploaded bytes from memory.
type fakeObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{files: make(map[string][]byte)}
}

func (f *fakeObjects) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return "https://" + bucket + ".s3.eu-west-1.amazonaws.com/" + key, nil
}

func (f *fakeObjects) DeleteFile(ctx context.Context, bucket, key string) error { return nil }

func (f *fakeObjects) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeObjects) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, err := f.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// textParser treats the raw bytes as one page of plain text.
type textParser struct{}

func (textParser) Parse(ctx context.Context, data []byte, contentType string) ([]core.Page, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []core.Page{{Number: 1, Text: text}}, nil
}

func (textParser) ExtractTables(ctx context.Context, data []byte, contentType string) ([]core.Table, error) {
	return nil, nil
}

type unitEmbedder struct{}

func (unitEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type flatEncoder struct{}

func (flatEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = 0.5
	}
	return scores, nil
}

type echoLLM struct{}

func (echoLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "grounded answer", nil
}

func newTestService(t *testing.T) (*RagService, *fakeDB, *DocumentService) {
	t.Helper()

	db := newFakeDB()
	objects := newFakeObjects()
	docs := NewDocumentService(db, objects, "test-bucket")

	q, err := queue.Open("", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	logger := discardLogger()
	producer := ingest.NewProducer(textParser{}, q, logger, 500, 200, 2)
	indexer := ingest.NewIndexer(q, unitEmbedder{}, db, logger, 3, 100*time.Millisecond)
	retriever := retrieve.NewRetriever(unitEmbedder{}, db, flatEncoder{}, logger, 20, 5)
	synth := retrieve.NewSynthesizer(echoLLM{}, logger)

	svc := NewRagService(db, docs, q, producer, indexer, retriever, synth, logger, time.Hour)
	return svc, db, docs
}

func TestIngestIndexesUploadedDocuments(t *testing.T) {
	svc, db, docs := newTestService(t)
	ctx := context.Background()

	doc, err := docs.UploadAndCreate(ctx, "u1", "report.pdf", "text/plain",
		[]byte("First paragraph about revenue.\n\nSecond paragraph about costs."))
	require.NoError(t, err)

	job := &models.IngestionJob{ID: "job-1", UserID: "u1", Status: models.JobPending}
	require.NoError(t, db.CreateJob(ctx, job))

	result, err := svc.Ingest(ctx, "job-1", "u1", []models.Document{*doc})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.DocCount)
	assert.Equal(t, 1, result.ChunkCount)

	got, err := db.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)

	stored, err := db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ready", stored.Status)

	n, err := db.Count(ctx, CollectionName("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestCountsOnlyDocumentsThatYieldChunks(t *testing.T) {
	svc, db, docs := newTestService(t)
	ctx := context.Background()

	good, err := docs.UploadAndCreate(ctx, "u1", "report.pdf", "text/plain",
		[]byte("A readable body that splits into at least one chunk."))
	require.NoError(t, err)
	empty, err := docs.UploadAndCreate(ctx, "u1", "blank.pdf", "text/plain", []byte("   "))
	require.NoError(t, err)

	job := &models.IngestionJob{ID: "job-1", UserID: "u1", Status: models.JobPending}
	require.NoError(t, db.CreateJob(ctx, job))

	result, err := svc.Ingest(ctx, "job-1", "u1", []models.Document{*good, *empty})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, result.DocCount, "only documents that contributed chunks count")
	assert.Equal(t, 1, result.ChunkCount)
}

func TestIngestNoDocuments(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	job := &models.IngestionJob{ID: "job-1", UserID: "u1", Status: models.JobPending}
	require.NoError(t, db.CreateJob(ctx, job))

	result, err := svc.Ingest(ctx, "job-1", "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "no_documents", result.Status)
	assert.Zero(t, result.ChunkCount)
}

func TestIngestReportsProgress(t *testing.T) {
	svc, db, docs := newTestService(t)
	ctx := context.Background()

	var body strings.Builder
	for i := 0; i < 12; i++ {
		body.WriteString("A paragraph of meaningful length that stands alone with plenty of words to make the splitter emit a separate chunk for it, padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding padding.\n\n")
	}
	doc, err := docs.UploadAndCreate(ctx, "u1", "long.pdf", "text/plain", []byte(body.String()))
	require.NoError(t, err)

	job := &models.IngestionJob{ID: "job-1", UserID: "u1", Status: models.JobPending}
	require.NoError(t, db.CreateJob(ctx, job))

	result, err := svc.Ingest(ctx, "job-1", "u1", []models.Document{*doc})
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 3, "needs multiple batches")

	require.NotEmpty(t, db.progress)
	assert.Equal(t, 100, db.progress[len(db.progress)-1])
	for i := 1; i < len(db.progress); i++ {
		assert.GreaterOrEqual(t, db.progress[i], db.progress[i-1])
	}
}

func TestAnswerOverIngestedContent(t *testing.T) {
	svc, db, docs := newTestService(t)
	ctx := context.Background()

	doc, err := docs.UploadAndCreate(ctx, "u1", "report.pdf", "text/plain",
		[]byte("Revenue grew twelve percent in the last quarter."))
	require.NoError(t, err)

	require.NoError(t, db.CreateJob(ctx, &models.IngestionJob{ID: "j", UserID: "u1"}))
	_, err = svc.Ingest(ctx, "j", "u1", []models.Document{*doc})
	require.NoError(t, err)

	ans, err := svc.Answer(ctx, "u1", "How did revenue change?")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", ans.Answer)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "report.pdf - Page 1", ans.Sources[0])
}

func TestAnswerEmptyCollection(t *testing.T) {
	svc, _, _ := newTestService(t)

	ans, err := svc.Answer(context.Background(), "nobody", "anything at all?")
	require.NoError(t, err)
	assert.Equal(t, retrieve.NoResultsAnswer, ans.Answer)
	assert.Empty(t, ans.Sources)
}

func TestAnswerTableQuestionFallsBackToTextChunks(t *testing.T) {
	svc, db, docs := newTestService(t)
	ctx := context.Background()

	// Only text chunks exist, so the table-first pass finds nothing and
	// the question still gets answered from the full index.
	doc, err := docs.UploadAndCreate(ctx, "u1", "report.pdf", "text/plain",
		[]byte("Staff headcount stayed flat across the year."))
	require.NoError(t, err)
	require.NoError(t, db.CreateJob(ctx, &models.IngestionJob{ID: "j", UserID: "u1"}))
	_, err = svc.Ingest(ctx, "j", "u1", []models.Document{*doc})
	require.NoError(t, err)

	ans, err := svc.Answer(ctx, "u1", "Which table lists headcount?")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", ans.Answer)
	require.NotEmpty(t, ans.Sources)
}

func TestHasTableIntent(t *testing.T) {
	assert.True(t, hasTableIntent("show me the TABLE of results"))
	assert.True(t, hasTableIntent("what is in column two"))
	assert.False(t, hasTableIntent("summarize the document"))
}

func TestParseObjectURL(t *testing.T) {
	bucket, key := parseObjectURL("https://my-bucket.s3.us-east-2.amazonaws.com/users/u1/documents/d1/file.pdf")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "users/u1/documents/d1/file.pdf", key)
}
