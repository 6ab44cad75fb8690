package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// File names within an event directory.
const (
	IncidentFile = "incident.txt"
	MetadataFile = "metadata.json"
	ManifestFile = "manifest.json"

	EvidencePrefix    = "evidence_"
	ClaimsPrefix      = "claims_"
	ConvergencePrefix = "convergence_"

	tokenLayout  = "20060102T150405.000000000Z"
	replaySuffix = "-replay"
)

// Run kinds recorded in metadata.json.
const (
	RunAnalysis = "analysis"
	RunReplay   = "replay"
)

// RunRecord lists exactly the files written by one analysis or replay.
type RunRecord struct {
	Kind           string    `json:"kind"`
	Token          string    `json:"token"`
	Timestamp      time.Time `json:"timestamp"`
	IncidentSHA256 string    `json:"incident_sha256,omitempty"`
	Agents         []string  `json:"agents,omitempty"`
	Files          []string  `json:"files"`
}

type Metadata struct {
	EventID   uuid.UUID   `json:"event_id"`
	CreatedAt time.Time   `json:"created_at"`
	Runs      []RunRecord `json:"runs"`
}

// Run is everything one analysis persists.
type Run struct {
	EventID      uuid.UUID
	IncidentText string
	Evidence     map[string]*domain.EvidenceExtraction
	Claims       map[string]*domain.AgentClaims
	Metrics      *domain.ConvergenceMetrics
}

// ArtifactSet is a loaded event: the latest file per agent and the latest
// convergence metrics, if any.
type ArtifactSet struct {
	EventID       uuid.UUID
	Dir           string
	IncidentText  string
	Evidence      map[string]*domain.EvidenceExtraction
	Claims        map[string]*domain.AgentClaims
	EvidenceFiles map[string]string
	ClaimsFiles   map[string]string
	Metrics       *domain.ConvergenceMetrics
	MetricsFile   string
}

// Store keeps one directory per event under root. Writers never replace an
// existing evidence, claims or convergence file.
type Store struct {
	root  string
	now   func() time.Time
	locks sync.Map
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root, now: time.Now}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) EventDir(eventID uuid.UUID) string {
	return filepath.Join(s.root, eventID.String())
}

func (s *Store) Exists(eventID uuid.UUID) bool {
	info, err := os.Stat(s.EventDir(eventID))
	return err == nil && info.IsDir()
}

func (s *Store) lock(eventID uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(eventID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// WriteRun persists the incident text, one evidence and one claims file per
// agent, the convergence metrics and a metadata entry listing those files.
func (s *Store) WriteRun(run *Run) (*RunRecord, error) {
	if run.Metrics == nil {
		return nil, fmt.Errorf("run has no convergence metrics")
	}
	dir := s.EventDir(run.EventID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	if err := s.writeIncident(dir, run.IncidentText); err != nil {
		return nil, err
	}

	ts := s.now().UTC()
	token := ts.Format(tokenLayout)
	agents := sortedKeys(run.Evidence)
	rec := &RunRecord{
		Kind:           RunAnalysis,
		Token:          token,
		Timestamp:      ts,
		IncidentSHA256: sha256Hex([]byte(run.IncidentText)),
		Agents:         agents,
		Files:          []string{IncidentFile},
	}

	for _, agent := range agents {
		name, err := writeExclusiveJSON(dir, EvidencePrefix+agent+"_", token, run.Evidence[agent])
		if err != nil {
			return nil, err
		}
		rec.Files = append(rec.Files, name)
	}
	for _, agent := range sortedKeys(run.Claims) {
		name, err := writeExclusiveJSON(dir, ClaimsPrefix+agent+"_", token, run.Claims[agent])
		if err != nil {
			return nil, err
		}
		rec.Files = append(rec.Files, name)
	}
	name, err := writeExclusiveJSON(dir, ConvergencePrefix, token, run.Metrics)
	if err != nil {
		return nil, err
	}
	rec.Files = append(rec.Files, name)

	if err := s.appendRun(run.EventID, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// WriteConvergence stores recomputed metrics for an existing event under a
// replay token and records it in metadata.json.
func (s *Store) WriteConvergence(eventID uuid.UUID, m *domain.ConvergenceMetrics) (string, error) {
	dir := s.EventDir(eventID)
	if !s.Exists(eventID) {
		return "", domain.ErrEventNotFound
	}
	ts := s.now().UTC()
	token := ts.Format(tokenLayout) + replaySuffix
	name, err := writeExclusiveJSON(dir, ConvergencePrefix, token, m)
	if err != nil {
		return "", err
	}
	rec := RunRecord{Kind: RunReplay, Token: token, Timestamp: ts, Files: []string{name}}
	if err := s.appendRun(eventID, rec); err != nil {
		return "", err
	}
	return name, nil
}

func writeExclusiveJSON(dir, prefix, token string, v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", err
	}
	return createExclusive(dir, prefix, token, data)
}

// writeIncident stores the incident text once. A later run for the same
// event must carry the identical text.
func (s *Store) writeIncident(dir, text string) error {
	path := filepath.Join(dir, IncidentFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		existing, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read incident: %w", rerr)
		}
		if !bytes.Equal(existing, []byte(text)) {
			return domain.ErrIncidentConflict
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write incident: %w", err)
	}
	return nil
}

func (s *Store) appendRun(eventID uuid.UUID, rec RunRecord) error {
	unlock := s.lock(eventID)
	defer unlock()

	path := filepath.Join(s.EventDir(eventID), MetadataFile)
	meta, err := s.readMetadata(path)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &Metadata{EventID: eventID, CreatedAt: rec.Timestamp}
	}
	meta.Runs = append(meta.Runs, rec)
	if err := WriteJSONAtomic(path, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Store) readMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// Metadata returns the run history of an event.
func (s *Store) Metadata(eventID uuid.UUID) (*Metadata, error) {
	if !s.Exists(eventID) {
		return nil, domain.ErrEventNotFound
	}
	meta, err := s.readMetadata(filepath.Join(s.EventDir(eventID), MetadataFile))
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: no metadata", domain.ErrNotLoadable)
	}
	return meta, nil
}

type eventEntry struct {
	id      string
	modTime time.Time
}

// ListEvents returns the ids of all event directories, most recently
// modified first. Directories whose name is not a canonical UUID are ignored.
func (s *Store) ListEvents() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read artifact root: %w", err)
	}
	events := make([]eventEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil || id.String() != e.Name() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		events = append(events, eventEntry{id: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].modTime.Equal(events[j].modTime) {
			return events[i].id < events[j].id
		}
		return events[i].modTime.After(events[j].modTime)
	})
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.id
	}
	return ids, nil
}

// ListFiles returns the regular files of an event directory, sorted by name.
func (s *Store) ListFiles(eventID uuid.UUID) ([]string, error) {
	return listFiles(s.EventDir(eventID))
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasSuffix(e.Name(), ".tmp") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) ReadFile(eventID uuid.UUID, name string) ([]byte, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	return os.ReadFile(filepath.Join(s.EventDir(eventID), name))
}

// Classified groups the files of an event directory by artifact kind.
type Classified struct {
	Evidence    []string
	Claims      []string
	Convergence []string
	HasIncident bool
}

func Classify(files []string) Classified {
	var c Classified
	for _, f := range files {
		switch {
		case f == IncidentFile:
			c.HasIncident = true
		case strings.HasPrefix(f, EvidencePrefix) && strings.HasSuffix(f, ".json"):
			c.Evidence = append(c.Evidence, f)
		case strings.HasPrefix(f, ClaimsPrefix) && strings.HasSuffix(f, ".json"):
			c.Claims = append(c.Claims, f)
		case strings.HasPrefix(f, ConvergencePrefix) && strings.HasSuffix(f, ".json"):
			c.Convergence = append(c.Convergence, f)
		}
	}
	return c
}

// LatestConvergence returns the convergence file with the greatest token.
func LatestConvergence(files []string) string {
	var best, bestToken string
	for _, f := range files {
		token, ok := parseConvergenceFile(f)
		if ok && token > bestToken {
			best, bestToken = f, token
		}
	}
	return best
}

// Load reads the incident text, the evidence and claims of the latest
// analysis run and the latest convergence metrics. The run's files come from
// metadata.json; events without metadata fall back to the latest file per
// agent. A missing directory is ErrEventNotFound; a directory without
// incident text, evidence or claims is ErrNotLoadable.
func (s *Store) Load(eventID uuid.UUID) (*ArtifactSet, error) {
	files, err := s.ListFiles(eventID)
	if err != nil {
		return nil, err
	}
	dir := s.EventDir(eventID)
	c, err := s.runInputs(dir, files)
	if err != nil {
		return nil, err
	}
	if !c.HasIncident {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrNotLoadable, IncidentFile)
	}
	if len(c.Evidence) == 0 || len(c.Claims) == 0 {
		return nil, fmt.Errorf("%w: no evidence or claims files", domain.ErrNotLoadable)
	}

	text, err := os.ReadFile(filepath.Join(dir, IncidentFile))
	if err != nil {
		return nil, fmt.Errorf("read incident: %w", err)
	}

	set := &ArtifactSet{
		EventID:       eventID,
		Dir:           dir,
		IncidentText:  string(text),
		Evidence:      make(map[string]*domain.EvidenceExtraction),
		Claims:        make(map[string]*domain.AgentClaims),
		EvidenceFiles: latestPerAgent(c.Evidence, "evidence"),
		ClaimsFiles:   latestPerAgent(c.Claims, "claims"),
	}
	for agent, name := range set.EvidenceFiles {
		var e domain.EvidenceExtraction
		if err := readJSON(filepath.Join(dir, name), &e); err != nil {
			return nil, err
		}
		set.Evidence[agent] = &e
	}
	for agent, name := range set.ClaimsFiles {
		var cl domain.AgentClaims
		if err := readJSON(filepath.Join(dir, name), &cl); err != nil {
			return nil, err
		}
		set.Claims[agent] = &cl
	}
	if latest := LatestConvergence(c.Convergence); latest != "" {
		var m domain.ConvergenceMetrics
		if err := readJSON(filepath.Join(dir, latest), &m); err != nil {
			return nil, err
		}
		set.Metrics = &m
		set.MetricsFile = latest
	}
	return set, nil
}

// runInputs classifies the event files, narrowing evidence and claims to
// those written by the latest analysis run. If metadata is absent or none of
// that run's inputs remain, every file is kept.
func (s *Store) runInputs(dir string, files []string) (Classified, error) {
	c := Classify(files)
	meta, err := s.readMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return c, fmt.Errorf("%w: %v", domain.ErrNotLoadable, err)
	}
	if meta == nil {
		return c, nil
	}

	var run *RunRecord
	for i := range meta.Runs {
		r := &meta.Runs[i]
		if r.Kind == RunAnalysis && (run == nil || r.Token > run.Token) {
			run = r
		}
	}
	if run == nil {
		return c, nil
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	var kept []string
	for _, f := range run.Files {
		if present[f] {
			kept = append(kept, f)
		}
	}
	rc := Classify(kept)
	if len(rc.Evidence) == 0 || len(rc.Claims) == 0 {
		return c, nil
	}
	c.Evidence, c.Claims = rc.Evidence, rc.Claims
	return c, nil
}

func latestPerAgent(files []string, kind string) map[string]string {
	best := make(map[string]string)
	tokens := make(map[string]string)
	for _, f := range files {
		agent, token, ok := parseAgentFile(f, kind)
		if !ok {
			continue
		}
		if token > tokens[agent] {
			best[agent], tokens[agent] = f, token
		}
	}
	return best
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrNotLoadable, filepath.Base(path), err)
	}
	return nil
}

// RemoveOlderThan deletes event directories last modified before cutoff and
// returns how many were removed.
func (s *Store) RemoveOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read artifact root: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
