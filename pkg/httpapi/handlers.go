package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"

	// maxBodyBytes bounds request bodies; the largest valid one is a small
	// JSON object.
	maxBodyBytes = 1 << 10
)

// SessionResponse describes an open session.
type SessionResponse struct {
	ID      string    `json:"id"`
	Device  string    `json:"device"`
	Created time.Time `json:"created"`
}

// ValueMessage carries one stack value as JSON.
type ValueMessage struct {
	Value *int32 `json:"value"`
}

// IoctlRequest is the body of an ioctl request.
type IoctlRequest struct {
	Cmd uint   `json:"cmd"`
	Arg uint64 `json:"arg"`
}

// StatResponse reports every device the server's scope owns.
type StatResponse struct {
	Isolation device.Isolation `json:"isolation"`
	Sessions  int              `json:"sessions"`
	Devices   []DeviceStat     `json:"devices"`
}

// DeviceStat is the JSON form of device.Stats.
type DeviceStat struct {
	Name string `json:"name"`
	device.Stats
}

func (s *Server) handleBegin(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.begin(hr.Context())
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	s.opts.Logger.InfoContext(observability.WithSession(hr.Context(), sess.id.String()),
		"session begin", "device", sess.file.Device().Name())

	writeJSON(rw, http.StatusCreated, sessionResponse(sess))
}

func (s *Server) handleList(rw http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]SessionResponse, 0, len(s.sessions))

	for _, sess := range s.sessions {
		out = append(out, sessionResponse(sess))
	}
	s.mu.Unlock()

	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleEnd(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.end(hr.PathValue("id"))
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	ctx := observability.WithSession(hr.Context(), sess.id.String())

	err = sess.file.CloseContext(ctx)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	s.opts.Logger.InfoContext(ctx, "session end", "age", time.Since(sess.created).String())
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.lookup(hr.PathValue("id"))
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	payload, err := readValuePayload(hr)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	_, err = sess.file.WriteContext(observability.WithSession(hr.Context(), sess.id.String()), payload)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePop(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.lookup(hr.PathValue("id"))
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	buf := make([]byte, chardev.ValueSize)

	_, err = sess.file.ReadContext(observability.WithSession(hr.Context(), sess.id.String()), buf)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	if wantsBinary(hr.Header.Get("Accept")) {
		rw.Header().Set("Content-Type", contentTypeBinary)
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write(buf)

		return
	}

	v, err := chardev.DecodeValue(buf)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	writeJSON(rw, http.StatusOK, ValueMessage{Value: &v})
}

func (s *Server) handleIoctl(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.lookup(hr.PathValue("id"))
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	var req IoctlRequest

	err = decodeJSON(hr, &req)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	err = sess.file.Ioctl(observability.WithSession(hr.Context(), sess.id.String()), device.Command(req.Cmd), req.Arg)
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionStat(rw http.ResponseWriter, hr *http.Request) {
	sess, err := s.lookup(hr.PathValue("id"))
	if err != nil {
		s.writeError(rw, hr, err)

		return
	}

	dev := sess.file.Device()
	writeJSON(rw, http.StatusOK, DeviceStat{Name: dev.Name(), Stats: dev.Stat()})
}

func (s *Server) handleStat(rw http.ResponseWriter, _ *http.Request) {
	devices := s.scope.Devices()
	stats := make([]DeviceStat, 0, len(devices))

	for _, dev := range devices {
		stats = append(stats, DeviceStat{Name: dev.Name(), Stats: dev.Stat()})
	}

	writeJSON(rw, http.StatusOK, StatResponse{
		Isolation: s.scope.Mode(),
		Sessions:  s.SessionCount(),
		Devices:   stats,
	})
}

func (s *Server) writeError(rw http.ResponseWriter, hr *http.Request, err error) {
	status, body := newErrorBody(err)

	ctx := hr.Context()
	if id := hr.PathValue("id"); id != "" {
		ctx = observability.WithSession(ctx, id)
	}

	s.opts.Logger.DebugContext(ctx, "request failed",
		"route", hr.Pattern, "status", status, "kind", body.Kind, "error", err)

	writeJSON(rw, status, body)
}

// readValuePayload returns the wire bytes of the value to push. Binary
// bodies pass through unchanged so short buffers surface as copy faults.
func readValuePayload(hr *http.Request) ([]byte, error) {
	if isBinary(hr.Header.Get("Content-Type")) {
		data, err := io.ReadAll(http.MaxBytesReader(nil, hr.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}

		return data, nil
	}

	var msg ValueMessage

	err := decodeJSON(hr, &msg)
	if err != nil {
		return nil, err
	}

	if msg.Value == nil {
		return nil, fmt.Errorf("%w: missing value", ErrBadRequest)
	}

	return chardev.AppendValue(nil, *msg.Value), nil
}

func decodeJSON(hr *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, hr.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	return nil
}

func isBinary(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)

	return err == nil && mediaType == contentTypeBinary
}

func wantsBinary(accept string) bool {
	return isBinary(accept)
}

func sessionResponse(sess *session) SessionResponse {
	return SessionResponse{
		ID:      sess.id.String(),
		Device:  sess.file.Device().Name(),
		Created: sess.created,
	}
}

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", contentTypeJSON)
	rw.WriteHeader(status)

	err := json.NewEncoder(rw).Encode(body)
	if err != nil {
		return
	}
}
