package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the memo and evaluation endpoints. Drafting endpoints
// share the rate limiter; a nil limiter disables limiting.
func RegisterRoutes(r gin.IRouter, memoHandler *MemoHandler, evaluationHandler *EvaluationHandler, limiter *IPRateLimiter) {
	limited := limiter.Middleware()

	r.POST("/generate-memo", limited, memoHandler.GenerateMemo)
	r.POST("/refine-existing-memo", limited, memoHandler.RefineMemo)
	r.GET("/get-all-chunks", memoHandler.ListChunks)
	r.POST("/save-memo", memoHandler.SaveMemo)

	r.POST("/evaluate-memo", evaluationHandler.EvaluateMemo)
	r.POST("/evaluate-memo/sweep", evaluationHandler.SweepMemo)
	r.GET("/evaluation-logs", evaluationHandler.ListEvaluationLogs)
	r.GET("/evaluation-logs/:id/report", evaluationHandler.GetEvaluationReport)
}
