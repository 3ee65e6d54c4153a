package learner

import (
	"fmt"
	"log/slog"

	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/model"
)

// ModuleSummary はダッシュボード上の1モジュール分の集計。
type ModuleSummary struct {
	Module           model.Module
	Status           model.ModuleStatus
	CompletedLessons int
	Progress         int
}

// Dashboard はラーナー1人分のダッシュボード集計。
type Dashboard struct {
	Learner          *model.Learner
	Modules          []ModuleSummary
	OverallProgress  int
	CompletedModules int
	TotalModules     int
	TimeSpentMinutes int
}

// ModuleStatusAt は登録順index番目のモジュール状態を返す。
// (enrolled, completed, current) のみから決まる。
func ModuleStatusAt(l *model.Learner, index int) model.ModuleStatus {
	id := l.EnrolledModules[index]
	switch {
	case l.HasCompleted(id):
		return model.ModuleStatusCompleted
	case l.CurrentModule != nil && *l.CurrentModule == id:
		return model.ModuleStatusInProgress
	case index == 0 || l.HasCompleted(l.EnrolledModules[index-1]):
		return model.ModuleStatusAvailable
	default:
		return model.ModuleStatusLocked
	}
}

// statusOf はモジュールIDから状態を返す。未登録のモジュールはlockedとする。
func statusOf(l *model.Learner, moduleID string) model.ModuleStatus {
	for i, id := range l.EnrolledModules {
		if id == moduleID {
			return ModuleStatusAt(l, i)
		}
	}
	return model.ModuleStatusLocked
}

// completedLessons は修了済みモジュールをレッスン数いっぱいとして、完了レッスン数を返す。
func completedLessons(l *model.Learner, m *model.Module, p *model.ModuleProgress) int {
	total := m.LessonCount()
	if l.HasCompleted(m.ID) {
		return total
	}
	if p == nil {
		return 0
	}
	return min(max(p.CompletedLessons, 0), total)
}

func buildDashboard(l *model.Learner, progress []model.ModuleProgress, catalog content.Provider) *Dashboard {
	byModule := make(map[string]*model.ModuleProgress, len(progress))
	for i := range progress {
		byModule[progress[i].ModuleID] = &progress[i]
	}

	d := &Dashboard{Learner: l}
	var doneTotal, lessonTotal int
	for i, id := range l.EnrolledModules {
		m, ok := catalog.Module(id)
		if !ok {
			slog.Warn("カタログに存在しないモジュールに登録されています",
				slog.String("learner_id", l.ID),
				slog.String("module_id", id),
			)
			continue
		}

		done := completedLessons(l, m, byModule[id])
		lessons := m.LessonCount()
		summary := ModuleSummary{
			Module:           *m,
			Status:           ModuleStatusAt(l, i),
			CompletedLessons: done,
			Progress:         percent(done, lessons),
		}
		d.Modules = append(d.Modules, summary)

		doneTotal += done
		lessonTotal += lessons
		for _, lesson := range m.Lessons[:done] {
			d.TimeSpentMinutes += lesson.DurationMinutes
		}
		if summary.Status == model.ModuleStatusCompleted {
			d.CompletedModules++
		}
	}
	d.TotalModules = len(d.Modules)
	d.OverallProgress = percent(doneTotal, lessonTotal)
	return d
}

// percent は floor(100*done/total) を返す。totalが0の場合は0。
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * done / total
}

// FormatDuration は分数を "1h 25m" 形式に整形する。
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}
