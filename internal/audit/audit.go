// Package audit emits structured traceability facts for KATO's learn
// and predict operations: one event per significant state transition,
// correlated by session_id and library_id, so a prediction or a learned
// pattern's history can be reconstructed after the fact. Built on top of
// the zap loggers internal/logging already provides rather than a
// second file-writing path.
package audit

import (
	"kato/internal/logging"
)

// EventType is the closed set of traceability facts KATO emits.
type EventType string

const (
	EventObserve     EventType = "observe"
	EventAutoLearn   EventType = "auto_learn"
	EventLearn       EventType = "learn"
	EventPredict     EventType = "predict"
	EventClearSTM    EventType = "clear_stm"
	EventClearAll    EventType = "clear_all"
	EventFilterStage EventType = "filter_stage"
)

// Logger emits audit facts scoped to one session/library pair.
type Logger struct {
	sessionID string
	libraryID string
}

// For builds a Logger scoped to sessionID/libraryID.
func For(sessionID, libraryID string) *Logger {
	return &Logger{sessionID: sessionID, libraryID: libraryID}
}

// Observe records an observe() call: the resulting STM length and
// whether it triggered an auto-learn.
func (l *Logger) Observe(stmLength, timeCounter int, autoLearnedPattern string) {
	log := logging.Get(logging.CategoryAudit)
	if autoLearnedPattern != "" {
		log.Infow(string(EventAutoLearn),
			"session_id", l.sessionID, "library_id", l.libraryID,
			"pattern_name", autoLearnedPattern, "stm_length_after", stmLength)
		return
	}
	log.Debugw(string(EventObserve),
		"session_id", l.sessionID, "library_id", l.libraryID,
		"stm_length", stmLength, "time", timeCounter)
}

// Learn records an explicit learn() call.
func (l *Logger) Learn(patternName string, frequency int) {
	logging.Get(logging.CategoryAudit).Infow(string(EventLearn),
		"session_id", l.sessionID, "library_id", l.libraryID,
		"pattern_name", patternName, "frequency", frequency)
}

// Predict records one predict() call's outcome: how many candidates
// survived filtering and how many predictions were finally emitted.
func (l *Logger) Predict(candidateCount, predictionCount int) {
	logging.Get(logging.CategoryAudit).Infow(string(EventPredict),
		"session_id", l.sessionID, "library_id", l.libraryID,
		"candidate_count", candidateCount, "prediction_count", predictionCount)
}

// FilterStage records one filter-pipeline stage's narrowing, when
// enable_filter_metrics is set (spec §4.4).
func (l *Logger) FilterStage(stage string, inputCount, outputCount int, overflowed bool) {
	logging.Get(logging.CategoryAudit).Debugw(string(EventFilterStage),
		"session_id", l.sessionID, "library_id", l.libraryID,
		"stage", stage, "input_count", inputCount, "output_count", outputCount, "overflowed", overflowed)
}

// ClearSTM records a clear_stm() call.
func (l *Logger) ClearSTM() {
	logging.Get(logging.CategoryAudit).Infow(string(EventClearSTM),
		"session_id", l.sessionID, "library_id", l.libraryID)
}

// ClearAll records a clear_all() call against a library.
func ClearAll(libraryID string) {
	logging.Get(logging.CategoryAudit).Infow(string(EventClearAll), "library_id", libraryID)
}
