package model

import (
	"slices"
	"time"
)

// Cohort はラーナーの所属コホートを表す。
type Cohort string

const (
	CohortVET          Cohort = "VET"
	CohortFirstNations Cohort = "First Nations"
	CohortOther        Cohort = "Other"
)

// Valid は定義済みのコホートかを返す。
func (c Cohort) Valid() bool {
	switch c {
	case CohortVET, CohortFirstNations, CohortOther:
		return true
	}
	return false
}

// ClassType は受講形態を表す。
type ClassType string

const (
	ClassTypeDigital    ClassType = "Digital"
	ClassTypeFaceToFace ClassType = "Face-to-Face"
	ClassTypeBoth       ClassType = "Both"
)

// DefaultClassType は受講形態が未指定の場合に用いる値。
const DefaultClassType = ClassTypeDigital

// Valid は定義済みの受講形態かを返す。
func (c ClassType) Valid() bool {
	switch c {
	case ClassTypeDigital, ClassTypeFaceToFace, ClassTypeBoth:
		return true
	}
	return false
}

// Learner はトレーニングプログラムの受講者を表す。
//
// 不変条件:
//   - CurrentModuleはnilまたはEnrolledModulesの要素
//   - CompletedModulesはEnrolledModulesの部分集合
//   - ProgressPercentageは0〜100
type Learner struct {
	ID                 string
	Name               string
	Email              string
	Cohort             Cohort
	Phone              *string
	ClassType          ClassType
	EnrolledModules    []string
	CompletedModules   []string
	CurrentModule      *string
	ProgressPercentage int
	RegisteredAt       time.Time
	LastLoginAt        *time.Time
}

// IsEnrolled は指定モジュールに登録済みかを返す。
func (l *Learner) IsEnrolled(moduleID string) bool {
	return slices.Contains(l.EnrolledModules, moduleID)
}

// HasCompleted は指定モジュールを修了済みかを返す。
func (l *Learner) HasCompleted(moduleID string) bool {
	return slices.Contains(l.CompletedModules, moduleID)
}

// LearnerPatch はラーナーの部分更新内容を表す。nilのフィールドは変更しない。
type LearnerPatch struct {
	CompletedModules   []string
	CurrentModule      **string // *nil でNULLに更新する
	ProgressPercentage *int
	LastLoginAt        *time.Time
}

// Empty は更新対象のフィールドがないかを返す。
func (p LearnerPatch) Empty() bool {
	return p.CompletedModules == nil && p.CurrentModule == nil &&
		p.ProgressPercentage == nil && p.LastLoginAt == nil
}

// ModuleStatus はダッシュボード上のモジュール状態を表す。
type ModuleStatus string

const (
	ModuleStatusLocked     ModuleStatus = "locked"
	ModuleStatusAvailable  ModuleStatus = "available"
	ModuleStatusInProgress ModuleStatus = "in_progress"
	ModuleStatusCompleted  ModuleStatus = "completed"
)

// ModuleProgress はラーナーごと・モジュールごとの進捗を表す。
type ModuleProgress struct {
	LearnerID        string
	ModuleID         string
	CompletedLessons int
	Completed        bool
	LastAccessedAt   time.Time
}
