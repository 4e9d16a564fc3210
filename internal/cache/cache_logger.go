package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateProfileCache drops all cached views of a profile. Called on
// profile edits and approval flips so the route guard never acts on a stale
// approval flag longer than one TTL window.
func InvalidateProfileCache(ctx context.Context, cm *CacheManager, profileID, email string) {
	SafeDelete(ctx, cm.Profile,
		fmt.Sprintf("id:%s", profileID),
		fmt.Sprintf("email:%s", email))
	SafeInvalidatePattern(ctx, cm.Profile, "list:*")
}

// InvalidateCourseCache drops course structure caches, including the
// per-user assignment lookups the policy evaluator depends on.
func InvalidateCourseCache(ctx context.Context, cm *CacheManager, courseID uint) {
	SafeDelete(ctx, cm.Course,
		fmt.Sprintf("id:%d", courseID),
		fmt.Sprintf("details:%d", courseID))
	SafeInvalidatePattern(ctx, cm.Course, "list:*")
	SafeInvalidatePattern(ctx, cm.Course, fmt.Sprintf("assignment:%d:*", courseID))
	SafeInvalidatePattern(ctx, cm.Exists, fmt.Sprintf("course:%d:*", courseID))
}

// InvalidateEvaluationCache drops evaluation caches for a student/unit pair.
func InvalidateEvaluationCache(ctx context.Context, cm *CacheManager, evaluationID uint, studentID string) {
	SafeDelete(ctx, cm.Evaluation, fmt.Sprintf("id:%d", evaluationID))
	SafeInvalidatePattern(ctx, cm.Evaluation, fmt.Sprintf("student:%s:*", studentID))
	SafeInvalidatePattern(ctx, cm.Evaluation, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, "evaluation:*")
}
