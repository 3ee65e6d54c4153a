package model

// Module はトレーニングモジュールの静的メタデータを表す。
// コンテンツプロバイダーから供給される。
type Module struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Duration    string     `json:"duration"`
	Difficulty  string     `json:"difficulty"`
	Overview    string     `json:"overview"`
	Lessons     []Lesson   `json:"lessons"`
	Resources   []Resource `json:"resources"`
}

// LessonCount はモジュールのレッスン数を返す。
func (m *Module) LessonCount() int {
	return len(m.Lessons)
}

// Lesson はモジュール内のレッスンを表す。
type Lesson struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	Duration        string `json:"duration"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"` // video, interactive, reading, quiz
}

// Resource はモジュールの配布資料を表す。
type Resource struct {
	Title string `json:"title"`
	Type  string `json:"type"`
	Size  string `json:"size"`
}
