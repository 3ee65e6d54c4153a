// Package content はダッシュボード用の静的ペイロードとモジュールカタログを提供する。
package content

import (
	"embed"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hitoshi/projecthub/internal/model"
)

//go:embed data/*.json
var dataFS embed.FS

// Provider はダッシュボードの静的コンテンツを供給するインターフェース。
type Provider interface {
	// Overview はプロジェクト概要ペイロードを返す。
	Overview() json.RawMessage
	// Cohort は指定コホートの分析ペイロードを返す。未知のIDは既定コホートにフォールバックする。
	Cohort(id int) *CohortAnalytics
	// WeeklyHuddle は週次ハドルのペイロードを返す。
	WeeklyHuddle() json.RawMessage
	// Modules はモジュールカタログを登録順に返す。
	Modules() []model.Module
	// Module は指定IDのモジュールを返す。
	Module(id string) (*model.Module, bool)
}

// JourneyStage はラーナージャーニーの1段階の人数を表す。
type JourneyStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// CohortAnalytics はコホート詳細画面のペイロード。
type CohortAnalytics struct {
	CohortName        string          `json:"cohort_name"`
	LearnerJourney    []JourneyStage  `json:"learner_journey"`
	SentimentAnalysis json.RawMessage `json:"sentiment_analysis"`
	AtRiskLearners    json.RawMessage `json:"at_risk_learners"`
	ContentEngagement json.RawMessage `json:"content_engagement"`
}

type cohortFunnel struct {
	Name              string `json:"name"`
	Recruited         int    `json:"recruited"`
	SignedUp          int    `json:"signed_up"`
	Onboarded         int    `json:"onboarded"`
	Module1           int    `json:"module1"`
	Module2           int    `json:"module2"`
	Module3InProgress int    `json:"module3_in_progress"`
}

type cohortFile struct {
	Fallback          int                     `json:"fallback"`
	Cohorts           map[string]cohortFunnel `json:"cohorts"`
	SentimentAnalysis json.RawMessage         `json:"sentiment_analysis"`
	AtRiskLearners    json.RawMessage         `json:"at_risk_learners"`
	ContentEngagement json.RawMessage         `json:"content_engagement"`
}

// Static は埋め込みJSONから読み込んだ不変のコンテンツ。
type Static struct {
	overview     json.RawMessage
	weeklyHuddle json.RawMessage
	cohorts      map[int]*CohortAnalytics
	fallback     int
	modules      []model.Module
	moduleIndex  map[string]int
}

// コンパイル時にインターフェースの実装を検証する。
var _ Provider = (*Static)(nil)

// Load は埋め込みデータを読み込み、整合性を検証してStaticを返す。
func Load() (*Static, error) {
	s := &Static{}

	var err error
	if s.overview, err = readRaw("data/overview.json"); err != nil {
		return nil, err
	}
	if s.weeklyHuddle, err = readRaw("data/weekly_huddle.json"); err != nil {
		return nil, err
	}

	if err := s.loadCohorts(); err != nil {
		return nil, err
	}
	if err := s.loadModules(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustLoad はLoadに失敗した場合にpanicする。埋め込みデータは不変のため起動時にのみ使う。
func MustLoad() *Static {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

func readRaw(name string) (json.RawMessage, error) {
	b, err := dataFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("invalid json in %s", name)
	}
	return json.RawMessage(b), nil
}

func (s *Static) loadCohorts() error {
	b, err := dataFS.ReadFile("data/cohorts.json")
	if err != nil {
		return fmt.Errorf("read cohorts: %w", err)
	}
	var f cohortFile
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("decode cohorts: %w", err)
	}

	s.cohorts = make(map[int]*CohortAnalytics, len(f.Cohorts))
	for key, c := range f.Cohorts {
		id, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("cohort key %q: %w", key, err)
		}
		s.cohorts[id] = &CohortAnalytics{
			CohortName: c.Name,
			LearnerJourney: []JourneyStage{
				{Stage: "Recruited", Count: c.Recruited},
				{Stage: "Signed Up", Count: c.SignedUp},
				{Stage: "Onboarded (Cyber-Safe)", Count: c.Onboarded},
				{Stage: "Module 1", Count: c.Module1},
				{Stage: "Module 2", Count: c.Module2},
				{Stage: "Module 3 (In Progress)", Count: c.Module3InProgress},
			},
			SentimentAnalysis: f.SentimentAnalysis,
			AtRiskLearners:    f.AtRiskLearners,
			ContentEngagement: f.ContentEngagement,
		}
	}
	if _, ok := s.cohorts[f.Fallback]; !ok {
		return fmt.Errorf("fallback cohort %d is not defined", f.Fallback)
	}
	s.fallback = f.Fallback
	return nil
}

func (s *Static) loadModules() error {
	b, err := dataFS.ReadFile("data/modules.json")
	if err != nil {
		return fmt.Errorf("read modules: %w", err)
	}
	if err := json.Unmarshal(b, &s.modules); err != nil {
		return fmt.Errorf("decode modules: %w", err)
	}
	if len(s.modules) == 0 {
		return fmt.Errorf("module catalog is empty")
	}

	s.moduleIndex = make(map[string]int, len(s.modules))
	for i, m := range s.modules {
		if m.ID == "" {
			return fmt.Errorf("module at index %d has no id", i)
		}
		if _, dup := s.moduleIndex[m.ID]; dup {
			return fmt.Errorf("duplicate module id %q", m.ID)
		}
		if m.LessonCount() == 0 {
			return fmt.Errorf("module %q has no lessons", m.ID)
		}
		s.moduleIndex[m.ID] = i
	}
	return nil
}

func (s *Static) Overview() json.RawMessage {
	return s.overview
}

func (s *Static) Cohort(id int) *CohortAnalytics {
	if c, ok := s.cohorts[id]; ok {
		return c
	}
	return s.cohorts[s.fallback]
}

func (s *Static) WeeklyHuddle() json.RawMessage {
	return s.weeklyHuddle
}

// Modules は呼び出し側が変更しても影響しないようコピーを返す。
func (s *Static) Modules() []model.Module {
	out := make([]model.Module, len(s.modules))
	copy(out, s.modules)
	return out
}

func (s *Static) Module(id string) (*model.Module, bool) {
	i, ok := s.moduleIndex[id]
	if !ok {
		return nil, false
	}
	m := s.modules[i]
	return &m, true
}

// ModuleIDs はカタログのモジュールIDを登録順に返す。
func ModuleIDs(p Provider) []string {
	mods := p.Modules()
	ids := make([]string, len(mods))
	for i, m := range mods {
		ids[i] = m.ID
	}
	return ids
}
