package gosnowflake

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/snowflakedb/gosnowflake/v2/internal/query"
)

const rowsInChunkTest = 300

func testRowTypes() []query.ExecResponseRowType {
	return []query.ExecResponseRowType{
		{Name: "c1", ByteLength: 10, Length: 10, Type: "FIXED", Scale: 0, Nullable: true},
		{Name: "c2", ByteLength: 100000, Length: 100000, Type: "TEXT", Scale: 0, Nullable: false},
	}
}

func testFirstChunkRows(n int) [][]*string {
	cc := make([][]*string, 0, n)
	for i := 0; i < n; i++ {
		v1 := fmt.Sprintf("%v", i)
		v2 := fmt.Sprintf("Test%v", i)
		cc = append(cc, []*string{&v1, &v2})
	}
	return cc
}

func testChunkMetas(numChunks int, size int64) []query.ExecResponseChunk {
	cm := make([]query.ExecResponseChunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		cm = append(cm, query.ExecResponseChunk{
			URL:              fmt.Sprintf("https://chunks.example.com/%v", i+1),
			RowCount:         rowsInChunkTest,
			UncompressedSize: size,
		})
	}
	return cm
}

func fillTestChunk(scd *snowflakeChunkDownloader, idx int) {
	d := make([][]*string, 0)
	for i := 0; i < rowsInChunkTest; i++ {
		v1 := fmt.Sprintf("%v", idx*1000+i)
		v2 := fmt.Sprintf("testchunk%v", idx*1000+i)
		d = append(d, []*string{&v1, &v2})
	}
	scd.Chunks[idx] = make([]chunkRowType, len(d))
	populateJSONRowSet(scd.Chunks[idx], d)
}

func downloadChunkTest(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
	scd.ChunksMutex.Lock()
	defer scd.ChunksMutex.Unlock()
	fillTestChunk(scd, idx)
	scd.DoneDownloadCond.Broadcast()
}

func countAllRows(t *testing.T, scd *snowflakeChunkDownloader) int {
	cnt := 0
	for {
		_, err := scd.next()
		if err == io.EOF {
			break
		}
		assertNilF(t, err, "reading next row")
		cnt++
	}
	return cnt
}

func testDownloader(numChunks int, chunkSize int64, memoryLimit int64) *snowflakeChunkDownloader {
	return &snowflakeChunkDownloader{
		rss:                &ResultSetSerializable{Parameters: make(map[string]*string)},
		ChunkMetas:         testChunkMetas(numChunks, chunkSize),
		PrefetchThreads:    4,
		MemoryLimit:        memoryLimit,
		QueryResultFormat:  jsonFormat,
		Qrmk:               "testqrmk",
		RowSet:             rowSetType{RowType: testRowTypes(), JSON: testFirstChunkRows(100)},
		FuncDownload:       downloadChunkTest,
		FuncDownloadHelper: downloadChunkHelper,
		FuncGet:            getChunk,
	}
}

func TestRowsWithManyChunks(t *testing.T) {
	numChunks := 12
	scd := testDownloader(numChunks, 0, 0)
	assertNilF(t, scd.start(context.Background()))

	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 100+numChunks*rowsInChunkTest)
}

func TestRowsWithoutChunkFiles(t *testing.T) {
	scd := testDownloader(0, 0, 0)
	assertNilF(t, scd.start(context.Background()))
	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 100)
}

func downloadChunkTestError(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
	// fail to download 6th and 10th chunk, and retry up to N times and success
	// NOTE: zero based index
	scd.ChunksMutex.Lock()
	defer scd.ChunksMutex.Unlock()
	if (idx == 6 || idx == 10) && scd.ChunksErrorCounter < maxChunkDownloaderErrorCounter {
		scd.ChunksError <- &chunkError{
			Index: idx,
			Error: fmt.Errorf(
				"dummy error. idx: %v, errCnt: %v", idx+1, scd.ChunksErrorCounter)}
		scd.DoneDownloadCond.Broadcast()
		return
	}
	fillTestChunk(scd, idx)
	scd.DoneDownloadCond.Broadcast()
}

func TestRowsWithChunkDownloaderError(t *testing.T) {
	numChunks := 12
	scd := testDownloader(numChunks, 0, 0)
	scd.FuncDownload = downloadChunkTestError
	assertNilF(t, scd.start(context.Background()))

	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 100+numChunks*rowsInChunkTest)
}

func downloadChunkTestErrorFail(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
	// fail to download 6th chunk permanently
	// NOTE: zero based index
	scd.ChunksMutex.Lock()
	defer scd.ChunksMutex.Unlock()
	if idx == 6 && scd.ChunksErrorCounter <= maxChunkDownloaderErrorCounter {
		scd.ChunksError <- &chunkError{
			Index: idx,
			Error: fmt.Errorf(
				"dummy error. idx: %v, errCnt: %v", idx+1, scd.ChunksErrorCounter)}
		scd.DoneDownloadCond.Broadcast()
		return
	}
	fillTestChunk(scd, idx)
	scd.DoneDownloadCond.Broadcast()
}

func TestRowsWithChunkDownloaderErrorFail(t *testing.T) {
	scd := testDownloader(12, 0, 0)
	scd.FuncDownload = downloadChunkTestErrorFail
	assertNilF(t, scd.start(context.Background()))

	var err error
	for err == nil {
		_, err = scd.next()
	}
	assertNotEqualE(t, err, io.EOF, "iteration must surface the permanent download error")
	assertStringContainsE(t, err.Error(), "dummy error")
}

func downloadChunkTestRecordInFlight(maxSeen *int, mu *sync.Mutex) func(context.Context, *snowflakeChunkDownloader, int) {
	return func(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
		scd.ChunksMutex.Lock()
		defer scd.ChunksMutex.Unlock()
		mu.Lock()
		if scd.InFlight > *maxSeen {
			*maxSeen = scd.InFlight
		}
		mu.Unlock()
		fillTestChunk(scd, idx)
		scd.DoneDownloadCond.Broadcast()
	}
}

func TestMemoryBudgetBoundsConcurrentChunks(t *testing.T) {
	// each chunk claims 100 bytes and the budget fits exactly one
	maxSeen := 0
	var mu sync.Mutex
	scd := testDownloader(8, 100, 100)
	scd.FuncDownload = downloadChunkTestRecordInFlight(&maxSeen, &mu)
	assertNilF(t, scd.start(context.Background()))

	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 100+8*rowsInChunkTest)
	mu.Lock()
	defer mu.Unlock()
	assertEqualE(t, maxSeen, 1, "never more than one chunk within a one-chunk budget")
}

func TestBudgetDeferredChunksAdmitInOrder(t *testing.T) {
	// 8 chunks of 100 bytes against a 100 byte budget and 4 workers: every
	// admission beyond the first is deferred, so consumption must drive the
	// deferred chunks through one at a time in index order. Out of order
	// admission would pin the whole budget on a chunk the iterator is not
	// waiting for and stall it forever.
	var mu sync.Mutex
	var admitted []int
	scd := testDownloader(8, 100, 100)
	scd.FuncDownload = func(ctx context.Context, scd *snowflakeChunkDownloader, idx int) {
		mu.Lock()
		admitted = append(admitted, idx)
		mu.Unlock()
		downloadChunkTest(ctx, scd, idx)
	}
	assertNilF(t, scd.start(context.Background()))

	type iterResult struct {
		cnt int
		err error
	}
	done := make(chan iterResult, 1)
	go func() {
		cnt := 0
		for {
			_, err := scd.next()
			if err == io.EOF {
				done <- iterResult{cnt, nil}
				return
			}
			if err != nil {
				done <- iterResult{cnt, err}
				return
			}
			cnt++
		}
	}()

	select {
	case res := <-done:
		assertNilF(t, res.err)
		assertEqualE(t, res.cnt, 100+8*rowsInChunkTest)
	case <-time.After(5 * time.Second):
		t.Fatal("iteration stalled waiting for a deferred chunk")
	}
	mu.Lock()
	defer mu.Unlock()
	assertDeepEqualE(t, admitted, []int{0, 1, 2, 3, 4, 5, 6, 7})
}

func TestDownloadChunkOverHTTP(t *testing.T) {
	var gotAlgorithm, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAlgorithm = r.Header.Get(headerSseCAlgorithm)
		gotKey = r.Header.Get(headerSseCKey)
		gz := gzip.NewWriter(w)
		// a chunk file carries comma separated rows with no enclosing brackets
		_, err := gz.Write([]byte(`["10","a"],["11",null]`))
		assertNilF(t, err)
		assertNilF(t, gz.Close())
	}))
	defer srv.Close()

	scd := testDownloader(1, 0, 0)
	scd.FuncDownload = downloadChunk
	scd.client = srv.Client()
	scd.ChunkMetas[0].URL = srv.URL
	scd.ChunkMetas[0].RowCount = 2
	assertNilF(t, scd.start(context.Background()))

	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 102)
	assertEqualE(t, gotAlgorithm, headerSseCAes, "qrmk must map to SSE-C headers")
	assertEqualE(t, gotKey, "testqrmk")
}

func TestDownloadChunkSendsProvidedHeaders(t *testing.T) {
	var gotHeader, gotAlgorithm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-custom-chunk-header")
		gotAlgorithm = r.Header.Get(headerSseCAlgorithm)
		// plain uncompressed body is accepted too
		_, err := w.Write([]byte(`["1","x"]`))
		assertNilF(t, err)
	}))
	defer srv.Close()

	scd := testDownloader(1, 0, 0)
	scd.FuncDownload = downloadChunk
	scd.client = srv.Client()
	scd.ChunkHeader = map[string]string{"x-custom-chunk-header": "value"}
	scd.ChunkMetas[0].URL = srv.URL
	scd.ChunkMetas[0].RowCount = 1
	assertNilF(t, scd.start(context.Background()))

	cnt := countAllRows(t, scd)
	assertEqualE(t, cnt, 101)
	assertEqualE(t, gotHeader, "value")
	assertEqualE(t, gotAlgorithm, "", "server issued headers replace the SSE-C defaults")
}

func TestDownloadChunkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	scd := testDownloader(1, 0, 0)
	scd.client = srv.Client()
	scd.ChunkMetas[0].URL = srv.URL

	err := downloadChunkHelper(context.Background(), scd, 0)
	assertNotNilF(t, err)
	var se *SnowflakeError
	assertErrorsAsF(t, err, &se)
	assertEqualE(t, se.Number, ErrFailedToGetChunk)
}

func TestChunkDownloaderDoesNotStartWhenArrowParsingCausesError(t *testing.T) {
	tcs := []string{
		"invalid base64",
		"aW52YWxpZCBhcnJvdw==", // valid base64, but invalid arrow
	}
	for _, tc := range tcs {
		t.Run(tc, func(t *testing.T) {
			scd := &snowflakeChunkDownloader{
				rss:               &ResultSetSerializable{Parameters: make(map[string]*string)},
				pool:              memory.NewGoAllocator(),
				QueryResultFormat: arrowFormat,
				RowSet: rowSetType{
					RowSetBase64: tc,
				},
			}

			err := scd.start(context.Background())

			assertNotNilF(t, err)
		})
	}
}

func TestLargeResultSetReaderWrapsBody(t *testing.T) {
	reader := &largeResultSetReader{
		body: newStringReader(`["1","a"],["2","b"]`),
	}
	all, err := io.ReadAll(reader)
	assertNilF(t, err)
	assertEqualE(t, string(all), `[["1","a"],["2","b"]]`)
}

func newStringReader(s string) io.Reader {
	return &stringReaderOneByte{data: []byte(s)}
}

// stringReaderOneByte feeds one byte per Read to exercise the reader's state
// transitions.
type stringReaderOneByte struct {
	data []byte
	pos  int
}

func (r *stringReaderOneByte) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
