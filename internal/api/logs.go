package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/eventlog"
)

const (
	// dateOnlyLayout is accepted for startDate and endDate besides RFC 3339.
	dateOnlyLayout = "2006-01-02"

	csvFilename        = "rv-c-logs.csv"
	csvTimestampLayout = "2006-01-02T15:04:05.000Z"
)

var csvHeader = []string{"ID", "DeviceID", "DeviceType", "Event", "Status", "Timestamp"}

// logFilterParams are the filter fields accepted in query strings and in
// the DELETE /logs body.
type logFilterParams struct {
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Event      string `json:"event"`
	EventType  string `json:"eventType"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

func paramsFromQuery(q url.Values) logFilterParams {
	return logFilterParams{
		DeviceID:   q.Get("deviceId"),
		DeviceType: q.Get("deviceType"),
		Event:      q.Get("event"),
		EventType:  q.Get("eventType"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
}

// filter converts the parameters to an eventlog.Filter.
func (p logFilterParams) filter() (eventlog.Filter, error) {
	f := eventlog.Filter{
		DeviceID:   p.DeviceID,
		DeviceType: p.DeviceType,
		Event:      p.Event,
	}
	if f.Event == "" {
		f.Event = p.EventType
	}

	if p.StartDate != "" {
		t, err := parseDate(p.StartDate, false)
		if err != nil {
			return f, fmt.Errorf("invalid startDate: %w", err)
		}
		f.Start = &t
	}
	if p.EndDate != "" {
		t, err := parseDate(p.EndDate, true)
		if err != nil {
			return f, fmt.Errorf("invalid endDate: %w", err)
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return f, errors.New("endDate is before startDate")
	}
	return f, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD. A date-only end bound covers
// the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(dateOnlyLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return t, nil
}

// parsePage reads limit and offset from the query string.
func parsePage(q url.Values, f *eventlog.Filter) error {
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}
	return nil
}

// handleListLogs returns event log entries, newest first.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireEventLog(w) {
		return
	}

	q := r.URL.Query()
	f, err := paramsFromQuery(q).filter()
	if err == nil {
		err = parsePage(q, &f)
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.eventLog.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("event log query failed", "error", err)
		writeInternalError(w, "failed to query logs")
		return
	}
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExportLogs streams every matching entry as CSV.
func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireEventLog(w) {
		return
	}

	f, err := paramsFromQuery(r.URL.Query()).filter()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	f.Limit = -1

	entries, err := s.eventLog.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("event log export failed", "error", err)
		writeInternalError(w, "failed to export logs")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+csvFilename+`"`)
	w.WriteHeader(http.StatusOK)

	if err := writeCSV(w, entries); err != nil {
		s.logger.Warn("event log export interrupted", "error", err)
	}
}

func writeCSV(w io.Writer, entries []eventlog.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.DeviceID,
			e.DeviceType,
			e.Event,
			e.Status,
			e.Timestamp.UTC().Format(csvTimestampLayout),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// handleDeleteLogs deletes entries matching the JSON body filters.
// An empty body deletes every entry.
func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireEventLog(w) {
		return
	}

	var p logFilterParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	f, err := p.filter()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	n, err := s.eventLog.Clear(r.Context(), f)
	if err != nil {
		s.logger.Error("event log delete failed", "error", err)
		writeInternalError(w, "failed to delete logs")
		return
	}

	s.logger.Info("event log entries deleted", "count", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%d logs deleted", n),
		"count":   n,
	})
}

func (s *Server) requireEventLog(w http.ResponseWriter) bool {
	if s.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event log not configured")
		return false
	}
	return true
}
