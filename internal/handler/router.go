package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

// Routes bundles the API handlers.
type Routes struct {
	Content     *ContentHandler
	Submissions *SubmissionHandler
	Progress    *ProgressHandler
	Attachments *AttachmentHandler
	Memberships *MembershipHandler
	Releases    *ReleaseHandler
}

// RouteGuards are the middleware chains applied by Register.
type RouteGuards struct {
	Auth       gin.HandlerFunc
	Scope      gin.HandlerFunc
	Privileged gin.HandlerFunc
	Audit      func(action, resource string) gin.HandlerFunc
}

func (g RouteGuards) audit(action, resource string) []gin.HandlerFunc {
	if g.Audit == nil {
		return nil
	}
	return []gin.HandlerFunc{g.Audit(action, resource)}
}

func chain(handlers []gin.HandlerFunc, final gin.HandlerFunc) []gin.HandlerFunc {
	return append(handlers, final)
}

// Register mounts every route on the API group.
func (r Routes) Register(api *gin.RouterGroup, g RouteGuards) {
	api.GET("/attachments/download", r.Attachments.Download)

	authed := api.Group("", g.Auth)

	scoped := authed.Group("", g.Scope)
	scoped.GET("/content", r.Content.List)
	scoped.GET("/progress", r.Progress.Mine)
	scoped.POST("/units/:id/submissions", r.Submissions.SubmitAnswer)
	scoped.POST("/micro-tasks/:id/submissions", r.Submissions.SubmitMicroTask)
	scoped.GET("/submissions/:id", r.Submissions.Get)
	scoped.GET("/submissions/:id/history", r.Submissions.History)
	scoped.POST("/submissions/:id/resubmit", r.Submissions.Resubmit)
	scoped.GET("/submissions/:id/attachment-link", r.Attachments.Link)

	admin := authed.Group("/admin", g.Privileged)
	admin.POST("/releases/sweep", chain(g.audit(models.AuditActionReleaseSweep, "release"), r.Releases.Sweep)...)

	cohort := admin.Group("/cohorts/:cohortId", g.Scope)
	cohort.GET("/content", r.Content.List)
	cohort.GET("/submissions", r.Submissions.Queue)
	cohort.POST("/submissions/:id/review", r.Submissions.Review)
	cohort.POST("/submissions/:id/request-resubmission", r.Submissions.RequestResubmission)
	cohort.GET("/learners/:learnerId/progress", r.Progress.Learner)
	cohort.GET("/progress/export", chain(g.audit(models.AuditActionProgressExport, "progress"), r.Progress.Export)...)
	cohort.GET("/memberships", r.Memberships.List)
	cohort.POST("/memberships", r.Memberships.Enroll)
	cohort.PATCH("/memberships/:id/status", r.Memberships.ChangeStatus)
}
