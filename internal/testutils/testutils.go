// Package testutils provides shared test infrastructure.
package testutils

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/layout"
)

// BucketSuffix is the bucket suffix served by CorpusServer.
const BucketSuffix = "clusterfuzz-test.invalid"

// GenerateTestData generates test data of the given size.
// For sizes <= 10MB, uses a deterministic pattern seeded by seed. For
// larger sizes, uses random data.
func GenerateTestData(t *testing.T, size int64, seed byte) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i%256) ^ seed
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// CorpusServer serves public.zip archives laid out like the OSS-Fuzz
// backup buckets.
type CorpusServer struct {
	*httptest.Server

	mu       sync.Mutex
	corpora  map[string][]byte
	statuses map[string]int
	requests map[string]int
}

// StartCorpusServer starts a CorpusServer closed at the end of the test.
func StartCorpusServer(t *testing.T) *CorpusServer {
	t.Helper()

	s := &CorpusServer{
		corpora:  make(map[string][]byte),
		statuses: make(map[string]int),
		requests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Layout returns a layout pointing at the server.
func (s *CorpusServer) Layout(scheme layout.Scheme) layout.Layout {
	return layout.Layout{
		BaseURL:      s.URL,
		BucketSuffix: BucketSuffix,
		Scheme:       scheme,
	}
}

func (s *CorpusServer) path(project, target string) string {
	return fmt.Sprintf("/%s-backup.%s/corpus/libFuzzer/%s/public.zip",
		project, BucketSuffix, layout.Normalize(project, target))
}

// Set publishes data as the corpus of project/target.
func (s *CorpusServer) Set(project, target string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpora[s.path(project, target)] = data
}

// Fail makes requests for project/target answer with status.
func (s *CorpusServer) Fail(project, target string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[s.path(project, target)] = status
}

// Requests returns how many requests project/target received.
func (s *CorpusServer) Requests(project, target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[s.path(project, target)]
}

// TotalRequests returns the number of requests served.
func (s *CorpusServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

func (s *CorpusServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	status, failing := s.statuses[r.URL.Path]
	data, ok := s.corpora[r.URL.Path]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		fmt.Fprintf(w, "<Error><Code>%s</Code></Error>", http.StatusText(status))
		return
	}
	if !ok {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
