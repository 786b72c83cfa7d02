package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session (JTI + upstream token).
func (r *CacheKeyStruct) UserSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// QuizRemainingKey returns the cache key for a user's remaining quiz seconds.
// One slot per user, shared across all blocks. Starting a new quiz resets it.
func (r *CacheKeyStruct) QuizRemainingKey(userID string) string {
	return fmt.Sprintf("user:%s:quiz:remaining", userID)
}

// QuizAnswersKey returns the cache key for a user's in-progress answers hash.
func (r *CacheKeyStruct) QuizAnswersKey(userID string) string {
	return fmt.Sprintf("user:%s:quiz:answers", userID)
}

// QuizActiveBlockKey returns the cache key for the block id of a user's
// in-progress attempt. Used to resume a session after a process restart.
func (r *CacheKeyStruct) QuizActiveBlockKey(userID string) string {
	return fmt.Sprintf("user:%s:quiz:active_block", userID)
}

var CacheKey = NewCacheKeyStruct()
