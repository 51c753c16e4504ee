// Package report publishes production test outcomes to an MQTT broker so a
// line dashboard can follow every station.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ALU-panda/production-tests/internal/gesture"
	"github.com/ALU-panda/production-tests/internal/monitoring"
)

// TopicRoot prefixes every topic published by a Reporter.
const TopicRoot = "cn0569"

// ErrPublishTimeout is returned when the broker does not acknowledge a
// message within the publish timeout.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher is the subset of mqtt.Client used by Reporter.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Summary describes a finished test run.
type Summary struct {
	RunID    string                `json:"run_id"`
	Board    string                `json:"board"`
	Station  string                `json:"station,omitempty"`
	Passed   bool                  `json:"passed"`
	Aborted  bool                  `json:"aborted,omitempty"`
	Error    string                `json:"error,omitempty"`
	Started  time.Time             `json:"started"`
	Finished time.Time             `json:"finished"`
	Trials   []gesture.TrialResult `json:"trials"`
}

type trialMessage struct {
	RunID string `json:"run_id"`
	gesture.TrialResult
}

// Reporter publishes trial results and run summaries for one run.
type Reporter struct {
	client  Publisher
	runID   string
	timeout time.Duration
}

// Dial connects to broker (e.g. "tcp://localhost:1883") and returns a
// Reporter for runID.
func Dial(broker, runID string) (*Reporter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("cn0569-gesture-test-" + shortID(runID)).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("[MQTT] Connection lost: %v (will auto-reconnect)", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect to %s failed: %w", broker, err)
	}
	monitoring.Logf("[MQTT] Connected to %s", broker)
	return NewReporter(client, runID), nil
}

// NewReporter returns a Reporter publishing through client.
func NewReporter(client Publisher, runID string) *Reporter {
	return &Reporter{client: client, runID: runID, timeout: 5 * time.Second}
}

// TrialTopic returns the topic a trial result is published on.
func (r *Reporter) TrialTopic(res gesture.TrialResult) string {
	return strings.Join([]string{TopicRoot, r.runID, "trial", res.UnitName, strings.ToLower(string(res.Expected))}, "/")
}

// SummaryTopic returns the topic of the run summary.
func (r *Reporter) SummaryTopic() string {
	return strings.Join([]string{TopicRoot, r.runID, "summary"}, "/")
}

// PublishTrial publishes one trial result.
func (r *Reporter) PublishTrial(res gesture.TrialResult) error {
	return r.publish(r.TrialTopic(res), false, trialMessage{RunID: r.runID, TrialResult: res})
}

// PublishSummary publishes the run summary as a retained message.
func (r *Reporter) PublishSummary(s Summary) error {
	s.RunID = r.runID
	return r.publish(r.SummaryTopic(), true, s)
}

// Observe publishes every finished trial. Register it with
// gesture.Controller.AddListener. Publish failures are logged, never fatal.
func (r *Reporter) Observe(ev gesture.TrialEvent) {
	if ev.Kind != gesture.EventTrialFinished || ev.Result == nil {
		return
	}
	if err := r.PublishTrial(*ev.Result); err != nil {
		monitoring.Logf("[MQTT] %v", err)
	}
}

// Close disconnects from the broker.
func (r *Reporter) Close() {
	r.client.Disconnect(250)
}

func (r *Reporter) publish(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	token := r.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
