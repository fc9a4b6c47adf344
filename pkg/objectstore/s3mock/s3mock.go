// Package s3mock runs a minimal in-process S3-compatible server for tests.
//
// It speaks just enough of the S3 REST dialect for the gateway and its
// presigned URLs to work against it: path-style object PUT/GET/HEAD/DELETE,
// bucket HEAD, MD5 ETags, and XML error bodies. Signatures on presigned URLs
// are accepted without verification.
package s3mock

import (
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// object is one stored blob with the metadata S3 reports about it.
type object struct {
	data         []byte
	contentType  string
	etag         string
	lastModified time.Time
}

// Server is an in-process S3-compatible server backed by a map.
type Server struct {
	httpServer *httptest.Server
	bucket     string

	mu      sync.RWMutex
	objects map[string]*object
}

// errorResponse is the S3 XML error envelope.
type errorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
	Key     string   `xml:"Key,omitempty"`
}

// New starts a server holding a single bucket. Callers must Close it.
func New(bucket string) *Server {
	s := &Server{
		bucket:  bucket,
		objects: make(map[string]*object),
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server's base endpoint, for use as a custom S3 endpoint
// with path-style addressing.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Bucket returns the bucket name the server accepts.
func (s *Server) Bucket() string {
	return s.bucket
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// ObjectCount reports how many objects are stored. Test helper.
func (s *Server) ObjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// HasObject reports whether a key holds an object. Test helper.
func (s *Server) HasObject(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// handle routes path-style requests: /<bucket> for bucket operations,
// /<bucket>/<key> for object operations.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	if bucket != s.bucket {
		writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", "")
		return
	}

	if key == "" {
		s.handleBucket(w, r)
		return
	}
	s.handleObject(w, r, key)
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead, http.MethodGet:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "The specified method is not allowed", "")
	}
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, key string) {
	switch r.Method {
	case http.MethodPut:
		s.putObject(w, r, key)
	case http.MethodGet:
		s.getObject(w, r, key, true)
	case http.MethodHead:
		s.getObject(w, r, key, false)
	case http.MethodDelete:
		s.deleteObject(w, key)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "The specified method is not allowed", key)
	}
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request, key string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "IncompleteBody", "Failed to read request body", key)
		return
	}

	obj := &object{
		data:         data,
		contentType:  r.Header.Get("Content-Type"),
		etag:         fmt.Sprintf("%q", fmt.Sprintf("%x", md5.Sum(data))),
		lastModified: time.Now().UTC(),
	}

	s.mu.Lock()
	s.objects[key] = obj
	s.mu.Unlock()

	w.Header().Set("ETag", obj.etag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request, key string, withBody bool) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		if withBody {
			writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist", key)
		} else {
			// HEAD responses carry no body, only the status.
			w.WriteHeader(http.StatusNotFound)
		}
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("ETag", obj.etag)
	w.Header().Set("Last-Modified", obj.lastModified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if withBody {
		w.Write(obj.data)
	}
}

func (s *Server) deleteObject(w http.ResponseWriter, key string) {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()

	// DeleteObject is idempotent: deleting a missing key still succeeds.
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, code, message, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(errorResponse{Code: code, Message: message, Key: key})
}
