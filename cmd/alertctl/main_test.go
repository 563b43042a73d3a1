package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"smartoffice/models"
	"smartoffice/repository"
)

type stubStore struct {
	query repository.RecentQuery
	acked int64
	err   error
}

func (s *stubStore) QueryRecent(_ context.Context, q repository.RecentQuery) (*repository.RecentResult, error) {
	s.query = q
	return &repository.RecentResult{Kind: q.Kind, Alerts: []models.Alert{{ID: 1}, {ID: 2}}}, s.err
}

func (s *stubStore) AcknowledgeAlert(_ context.Context, id int64) error {
	s.acked = id
	return s.err
}

func TestRun_List(t *testing.T) {
	s := &stubStore{}
	var out bytes.Buffer
	err := run(context.Background(), []string{"list", "alerts", "-limit", "5", "-severity", "ALARM", "-unacked"}, s, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.query.Kind != repository.KindAlert || s.query.Limit != 5 || s.query.Severity != "ALARM" {
		t.Errorf("query = %+v", s.query)
	}
	if s.query.Acknowledged == nil || *s.query.Acknowledged {
		t.Errorf("acknowledged = %v", s.query.Acknowledged)
	}
	if !strings.Contains(out.String(), "2 alert record(s)") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRun_Ack(t *testing.T) {
	s := &stubStore{}
	var out bytes.Buffer
	if err := run(context.Background(), []string{"ack", "42"}, s, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.acked != 42 || !strings.Contains(out.String(), "alert 42 acknowledged") {
		t.Errorf("acked=%d output=%q", s.acked, out.String())
	}
}

func TestRun_AckNotFound(t *testing.T) {
	s := &stubStore{err: models.ErrAlertNotFound}
	err := run(context.Background(), []string{"ack", "7"}, s, &bytes.Buffer{})
	if !errors.Is(err, models.ErrAlertNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_Usage(t *testing.T) {
	cases := [][]string{
		nil,
		{"purge"},
		{"list"},
		{"list", "weather"},
		{"list", "sensor", "-limit", "x"},
		{"ack"},
		{"ack", "abc"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args, &stubStore{}, &bytes.Buffer{}); err == nil {
			t.Errorf("run(%v) succeeded", args)
		}
	}
}
