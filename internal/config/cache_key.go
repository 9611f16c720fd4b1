package config

import (
	"fmt"
)

// CacheKeyStruct namespaces every Redis key the engine touches. Session
// state keys are scoped by exam title and purpose, mirroring the exam
// client's localStorage layout so a snapshot and its remaining-time value
// live under separate keys.
type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionStateKey returns the key for a student's Practice-mode snapshot.
func (r *CacheKeyStruct) SessionStateKey(examTitle string, studentID int) string {
	return fmt.Sprintf("student:%d:exam-state-%s", studentID, examTitle)
}

// SessionTimeKey returns the key for a student's persisted remaining time.
func (r *CacheKeyStruct) SessionTimeKey(examTitle string, studentID int) string {
	return fmt.Sprintf("student:%d:exam-time-%s", studentID, examTitle)
}

// ExamPayloadKey returns the key for an exam's cached student paper.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// StudentActiveExamKey returns the key for a student's currently active exam.
func (r *CacheKeyStruct) StudentActiveExamKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exam", studentID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's
// live proctor feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
