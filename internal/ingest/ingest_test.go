package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mlusby/temperature-monitor/internal/readings"
	"github.com/mlusby/temperature-monitor/internal/store"
)

type fakeMsg struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMsg) Topic() string   { return m.topic }
func (m fakeMsg) Payload() []byte { return m.payload }
func (m fakeMsg) Retained() bool  { return m.retained }

func openRepo(t *testing.T) *store.Repo {
	t.Helper()
	// Use a unique in-memory DB per test (still shared cache within that DB)
	// to avoid cross-test contamination when tests run in parallel.
	dsn := "file:ingest_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db, "")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func newIngestor(repo *store.Repo) *Ingestor {
	return &Ingestor{
		Writer:      &readings.Writer{Store: repo, Limits: readings.DefaultLimits()},
		TopicPrefix: DefaultTopicPrefix,
	}
}

func TestParseSessionID(t *testing.T) {
	cases := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{topic: "temperature/readings/kiln-7", want: "kiln-7"},
		{topic: "temperature/readings/kiln-7/", want: "kiln-7"},
		{topic: "temperature/readings", want: ""},
		{topic: "temperature/readingsX/kiln", wantErr: true},
		{topic: "homenavi/other", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.topic, func(t *testing.T) {
			got, err := ParseSessionID(DefaultTopicPrefix, tc.topic)
			if tc.wantErr {
				if !errors.Is(err, ErrNotAReadingsTopic) {
					t.Fatalf("expected ErrNotAReadingsTopic, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %q, got %q (%v)", tc.want, got, err)
			}
		})
	}
}

func TestSubscriptionTopic(t *testing.T) {
	if got := (&Ingestor{}).SubscriptionTopic(); got != "temperature/readings/#" {
		t.Fatalf("unexpected filter %q", got)
	}
}

func TestHandleMessageUsesTopicSession(t *testing.T) {
	repo := openRepo(t)
	ing := newIngestor(repo)
	msg := fakeMsg{topic: "temperature/readings/kiln-7", payload: []byte(`{"sensorName":"A","temperature":812.5,"timestamp":"100"}`)}
	ing.HandleMessage(context.Background(), msg)

	rows, err := repo.Query(context.Background(), "kiln-7")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].Temperature != 812.5 {
		t.Fatalf("expected the reading to be stored, got %+v", rows)
	}
}

func TestHandleMessagePayloadSessionWins(t *testing.T) {
	repo := openRepo(t)
	ing := newIngestor(repo)
	msg := fakeMsg{topic: "temperature/readings/topic-session", payload: []byte(`{"sessionId":"payload-session","sensorName":"A","temperature":20,"timestamp":"1"}`)}
	ing.HandleMessage(context.Background(), msg)

	rows, err := repo.Query(context.Background(), "payload-session")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected payload session to be used, got %d rows", len(rows))
	}
}

func TestHandleMessageSkipsRetainedAndInvalid(t *testing.T) {
	repo := openRepo(t)
	ing := newIngestor(repo)
	ctx := context.Background()

	ing.HandleMessage(ctx, fakeMsg{topic: "temperature/readings/s1", payload: []byte(`{"sensorName":"A","temperature":20,"timestamp":"1"}`), retained: true})
	ing.HandleMessage(ctx, fakeMsg{topic: "temperature/readings/s1", payload: []byte(`{not-json}`)})
	ing.HandleMessage(ctx, fakeMsg{topic: "temperature/readings/s1", payload: []byte(`{"sensorName":"A","temperature":-500,"timestamp":"2"}`)})

	rows, err := repo.Query(ctx, "s1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(rows))
	}
}

type fakeKafka struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeKafka) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeKafka) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func TestConsumeKafka(t *testing.T) {
	repo := openRepo(t)
	ing := newIngestor(repo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeKafka{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Key: []byte("s1"), Value: []byte(`{"sensorName":"A","temperature":20,"timestamp":"1"}`)},
		{Offset: 2, Value: []byte(`{"sensorName":"A"}`)},
		{Offset: 3, Value: []byte(`{"sessionId":"s2","sensorName":"B","temperature":21,"timestamp":"1"}`)},
	}}

	if err := ing.ConsumeKafka(ctx, r); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(r.committed) != 3 {
		t.Fatalf("expected every offset committed, got %v", r.committed)
	}
	for _, session := range []string{"s1", "s2"} {
		rows, err := repo.Query(context.Background(), session)
		if err != nil || len(rows) != 1 {
			t.Fatalf("expected one row for %s, got %d (%v)", session, len(rows), err)
		}
	}
}

type failingKafka struct{}

func (failingKafka) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("broker unreachable")
}

func (failingKafka) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func TestConsumeKafkaReturnsFetchError(t *testing.T) {
	ing := newIngestor(openRepo(t))
	if err := ing.ConsumeKafka(context.Background(), failingKafka{}); err == nil {
		t.Fatalf("expected fetch error")
	}
}
