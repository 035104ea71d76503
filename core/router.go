package core

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, authService *AuthService, authn *Authenticator, principals PrincipalRepository,
	db *pgxpool.Pool, redisClient *redis.Client, rateStore RateCounterStore, policies RatePolicySet) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	r.Use(OriginRefererMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	articleRepo := NewPgArticleRepository(db)
	questionRepo := NewPgQuestionRepository(db)
	reportRepo := NewPgReportRepository(db)
	badgeRepo := NewPgBadgeRepository(db)
	announcementRepo := NewPgAnnouncementRepository(db)
	queue := NewRedisQueue(redisClient)
	metricsService := NewMetricsService(redisClient)

	api := r.Group("/api/v1")
	// OptionalAuth first so the general counter keys on the principal for
	// authenticated traffic; kind-specific guards still re-verify below.
	api.Use(authn.OptionalAuth())
	api.Use(RateLimit(rateStore, policies.General))

	authLimit := RateLimit(rateStore, policies.Auth)
	contentLimit := RateLimit(rateStore, policies.Content)
	{
		api.POST("/auth/members/register", authLimit, func(c *gin.Context) {
			var req struct {
				Email       string `json:"email"`
				Password    string `json:"password"`
				DisplayName string `json:"display_name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Email = NormalizeEmail(req.Email)
			req.DisplayName = strings.TrimSpace(req.DisplayName)
			if req.Email == "" || !strings.Contains(req.Email, "@") {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required")
				return
			}
			if len(req.Password) < 8 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters")
				return
			}
			if req.DisplayName == "" {
				req.DisplayName = req.Email[:strings.Index(req.Email, "@")]
			}

			hash, err := HashPassword(req.Password)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
				return
			}
			ctx := c.Request.Context()
			p, err := principals.Create(ctx, KindMember, req.Email, req.DisplayName, hash)
			if err != nil {
				if errors.Is(err, ErrEmailTaken) {
					respondError(c, http.StatusConflict, "CONFLICT", "email already registered")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create account")
				return
			}
			c.JSON(http.StatusCreated, gin.H{"member": p.Summary()})
		})

		api.POST("/auth/members/login", authLimit, func(c *gin.Context) {
			handleLogin(c, authService, KindMember, "member")
		})

		api.POST("/auth/moderators/login", authLimit, func(c *gin.Context) {
			handleLogin(c, authService, KindModerator, "moderator")
		})

		api.GET("/members/me", authn.RequireMember(), func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			c.JSON(http.StatusOK, gin.H{
				"member":        p.Summary(),
				"last_login_at": p.LastLoginAt,
				"last_login_ip": p.LastLoginIP,
			})
		})

		api.PATCH("/members/me", authn.RequireMember(), func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				DisplayName string `json:"display_name"`
				Password    string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.DisplayName = strings.TrimSpace(req.DisplayName)
			if req.DisplayName == "" && req.Password == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "display_name or password is required")
				return
			}
			if req.Password != "" && len(req.Password) < 8 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters")
				return
			}
			ctx := c.Request.Context()
			if req.DisplayName != "" {
				if _, err := db.Exec(ctx, `UPDATE members SET display_name=$2 WHERE id=$1`, p.ID, req.DisplayName); err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update profile")
					return
				}
			}
			if req.Password != "" {
				// re-hash only when the plaintext actually changes hands
				hash, err := HashPassword(req.Password)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
					return
				}
				if _, err := db.Exec(ctx, `UPDATE members SET password_hash=$2 WHERE id=$1`, p.ID, hash); err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update password")
					return
				}
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/members/me/badges", authn.RequireMember(), func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			badges, err := badgeRepo.ListByMember(c.Request.Context(), p.ID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch badges")
				return
			}
			if badges == nil {
				badges = []Badge{}
			}
			c.JSON(http.StatusOK, gin.H{"badges": badges})
		})

		api.GET("/moderators/me", authn.RequireModerator(), func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			c.JSON(http.StatusOK, gin.H{
				"moderator":     p.Summary(),
				"last_login_at": p.LastLoginAt,
				"last_login_ip": p.LastLoginIP,
			})
		})

		api.GET("/announcements", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := announcementRepo.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch announcements")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/announcements/:id", func(c *gin.Context) {
			a, err := announcementRepo.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "announcement not found")
				return
			}
			c.JSON(http.StatusOK, a)
		})

		// Articles: mixed-audience listing; moderators see hidden rows and
		// report counts.
		api.GET("/articles", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			ctx := c.Request.Context()
			if isModerator(c) {
				items, total, err := articleRepo.ListModeration(ctx, page, perPage)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch articles")
					return
				}
				c.JSON(http.StatusOK, paginated(items, page, perPage, total))
				return
			}
			items, total, err := articleRepo.List(ctx, false, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch articles")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/articles/:id", func(c *gin.Context) {
			a, err := articleRepo.Get(c.Request.Context(), c.Param("id"), isModerator(c))
			if err != nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "article not found")
				return
			}
			c.JSON(http.StatusOK, a)
		})

		api.POST("/articles", authn.RequireMember(), contentLimit, func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and body are required")
				return
			}
			ctx := c.Request.Context()
			a, err := articleRepo.Create(ctx, p.ID, req.Title, req.Body)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create article")
				return
			}
			PublishBadgeEvent(ctx, queue, "article_created", p.ID)
			c.JSON(http.StatusCreated, a)
		})

		api.DELETE("/articles/:id", authn.RequireModerator(), func(c *gin.Context) {
			if err := articleRepo.SetHidden(c.Request.Context(), c.Param("id"), true); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "article not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hide article")
				return
			}
			c.Status(http.StatusNoContent)
		})

		// Questions and answers
		api.GET("/questions", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := questionRepo.List(c.Request.Context(), isModerator(c), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch questions")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		api.GET("/questions/:id", func(c *gin.Context) {
			q, answers, err := questionRepo.Get(c.Request.Context(), c.Param("id"), isModerator(c))
			if err != nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "question not found")
				return
			}
			if answers == nil {
				answers = []Answer{}
			}
			c.JSON(http.StatusOK, gin.H{"question": q, "answers": answers})
		})

		api.POST("/questions", authn.RequireMember(), contentLimit, func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				Title string `json:"title"`
				Body  string `json:"body"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and body are required")
				return
			}
			ctx := c.Request.Context()
			q, err := questionRepo.Create(ctx, p.ID, req.Title, req.Body)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create question")
				return
			}
			PublishBadgeEvent(ctx, queue, "question_created", p.ID)
			c.JSON(http.StatusCreated, q)
		})

		api.POST("/questions/:id/answers", authn.RequireMember(), contentLimit, func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				Body string `json:"body"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Body) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "body is required")
				return
			}
			ctx := c.Request.Context()
			a, err := questionRepo.CreateAnswer(ctx, c.Param("id"), p.ID, req.Body)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "question not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create answer")
				return
			}
			PublishBadgeEvent(ctx, queue, "answer_created", p.ID)
			c.JSON(http.StatusCreated, a)
		})

		api.POST("/questions/:id/accept", authn.RequireMember(), func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				AnswerID string `json:"answer_id"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.AnswerID) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "answer_id is required")
				return
			}
			err := questionRepo.AcceptAnswer(c.Request.Context(), c.Param("id"), req.AnswerID, p.ID)
			if err != nil {
				if errors.Is(err, ErrNotQuestionAuthor) {
					respondError(c, http.StatusForbidden, "FORBIDDEN", err.Error())
					return
				}
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "question or answer not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to accept answer")
				return
			}
			c.Status(http.StatusNoContent)
		})

		// Reports
		api.POST("/reports", authn.RequireMember(), contentLimit, func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				SubjectKind string `json:"subject_kind"`
				SubjectID   string `json:"subject_id"`
				Reason      string `json:"reason"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if !ValidReportSubjectKind(req.SubjectKind) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "subject_kind must be article, question or answer")
				return
			}
			if strings.TrimSpace(req.SubjectID) == "" || strings.TrimSpace(req.Reason) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "subject_id and reason are required")
				return
			}
			ctx := c.Request.Context()
			rep, err := reportRepo.Create(ctx, p.ID, req.SubjectKind, req.SubjectID, req.Reason)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to file report")
				return
			}
			PublishBadgeEvent(ctx, queue, "report_filed", p.ID)
			c.JSON(http.StatusCreated, rep)
		})

		// Moderation surface
		admin := api.Group("/admin")
		admin.Use(authn.RequireModerator())

		admin.GET("/members", func(c *gin.Context) {
			listPrincipals(c, principals, KindMember)
		})

		admin.PATCH("/members/:id/ban", func(c *gin.Context) {
			setPrincipalActive(c, principals, KindMember, false)
		})

		admin.PATCH("/members/:id/unban", func(c *gin.Context) {
			setPrincipalActive(c, principals, KindMember, true)
		})

		admin.GET("/moderators", func(c *gin.Context) {
			listPrincipals(c, principals, KindModerator)
		})

		admin.POST("/moderators", func(c *gin.Context) {
			var req struct {
				Email       string `json:"email"`
				Password    string `json:"password"`
				DisplayName string `json:"display_name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Email = NormalizeEmail(req.Email)
			req.DisplayName = strings.TrimSpace(req.DisplayName)
			if req.Email == "" || !strings.Contains(req.Email, "@") || len(req.Password) < 8 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "email and a password of at least 8 characters are required")
				return
			}
			hash, err := HashPassword(req.Password)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
				return
			}
			p, err := principals.Create(c.Request.Context(), KindModerator, req.Email, req.DisplayName, hash)
			if err != nil {
				if errors.Is(err, ErrEmailTaken) {
					respondError(c, http.StatusConflict, "CONFLICT", "email already registered")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create moderator")
				return
			}
			c.JSON(http.StatusCreated, gin.H{"moderator": p.Summary()})
		})

		admin.PATCH("/moderators/:id/deactivate", func(c *gin.Context) {
			caller, _ := PrincipalFrom(c)
			if caller.ID == c.Param("id") {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot deactivate yourself")
				return
			}
			setPrincipalActive(c, principals, KindModerator, false)
		})

		admin.GET("/reports", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := reportRepo.ListOpen(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch reports")
				return
			}
			c.JSON(http.StatusOK, paginated(items, page, perPage, total))
		})

		admin.PATCH("/reports/:id", func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				Status string `json:"status"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			err := reportRepo.Resolve(c.Request.Context(), c.Param("id"), p.ID, req.Status, time.Now())
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "open report not found")
					return
				}
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			c.Status(http.StatusNoContent)
		})

		admin.PATCH("/articles/:id", func(c *gin.Context) {
			setContentHidden(c, articleRepo.SetHidden)
		})

		admin.PATCH("/questions/:id", func(c *gin.Context) {
			setContentHidden(c, questionRepo.SetHidden)
		})

		admin.POST("/announcements", func(c *gin.Context) {
			p, _ := PrincipalFrom(c)
			var req struct {
				Title  string `json:"title"`
				Body   string `json:"body"`
				Pinned bool   `json:"pinned"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and body are required")
				return
			}
			a, err := announcementRepo.Create(c.Request.Context(), p.ID, req.Title, req.Body, req.Pinned)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create announcement")
				return
			}
			c.JSON(http.StatusCreated, a)
		})

		admin.PUT("/announcements/:id", func(c *gin.Context) {
			var req struct {
				Title  string `json:"title"`
				Body   string `json:"body"`
				Pinned bool   `json:"pinned"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and body are required")
				return
			}
			a, err := announcementRepo.Update(c.Request.Context(), c.Param("id"), req.Title, req.Body, req.Pinned)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "announcement not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update announcement")
				return
			}
			c.JSON(http.StatusOK, a)
		})

		admin.DELETE("/announcements/:id", func(c *gin.Context) {
			if err := announcementRepo.Delete(c.Request.Context(), c.Param("id")); err != nil {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "announcement not found")
				return
			}
			c.Status(http.StatusNoContent)
		})

		metrics := admin.Group("/metrics")
		{
			metrics.GET("/overview", func(c *gin.Context) {
				queueMetrics, workers, err := metricsService.Overview(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
					return
				}
				c.JSON(http.StatusOK, gin.H{"queues": queueMetrics, "workers": workers})
			})

			metrics.GET("/queues", func(c *gin.Context) {
				queueMetrics, err := metricsService.Queue(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load queue metrics")
					return
				}
				c.JSON(http.StatusOK, queueMetrics)
			})

			metrics.GET("/workers", func(c *gin.Context) {
				workers, err := metricsService.Workers(c.Request.Context())
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load workers")
					return
				}
				c.JSON(http.StatusOK, gin.H{"workers": workers})
			})

			metrics.GET("/workers/:id", func(c *gin.Context) {
				hb, err := metricsService.WorkerByID(c.Request.Context(), c.Param("id"))
				if err != nil {
					if errors.Is(err, redis.Nil) {
						respondError(c, http.StatusNotFound, "NOT_FOUND", "worker not found")
						return
					}
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load worker")
					return
				}
				c.JSON(http.StatusOK, hb)
			})
		}

		admin.GET("/system/status", func(c *gin.Context) {
			st, err := CollectSystemStatus(c.Request.Context(), metricsService, startedAt)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load system status")
				return
			}
			c.JSON(http.StatusOK, st)
		})
	}

	return r
}

func handleLogin(c *gin.Context, authService *AuthService, kind PrincipalKind, field string) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	res, err := authService.Login(c.Request.Context(), kind, req.Email, req.Password, normalizeAddr(c.ClientIP()))
	if err != nil {
		respondLoginError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{field: res.Principal, "token": res.Token})
}

// isModerator reports whether OptionalAuth attached a moderator.
func isModerator(c *gin.Context) bool {
	p, ok := PrincipalFrom(c)
	return ok && p.Kind == KindModerator
}

func listPrincipals(c *gin.Context, principals PrincipalRepository, kind PrincipalKind) {
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	items, total, err := principals.List(c.Request.Context(), kind, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch accounts")
		return
	}
	c.JSON(http.StatusOK, paginated(items, page, perPage, total))
}

func setPrincipalActive(c *gin.Context, principals PrincipalRepository, kind PrincipalKind, active bool) {
	err := principals.SetActive(c.Request.Context(), kind, c.Param("id"), active)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update account")
		return
	}
	c.Status(http.StatusNoContent)
}

func setContentHidden(c *gin.Context, setHidden func(ctx context.Context, id string, hidden bool) error) {
	var req struct {
		Hidden *bool `json:"hidden"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Hidden == nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "hidden is required")
		return
	}
	if err := setHidden(c.Request.Context(), c.Param("id"), *req.Hidden); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "content not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update content")
		return
	}
	c.Status(http.StatusNoContent)
}

func paginated[T any](items []T, page, perPage, total int) gin.H {
	if items == nil {
		items = []T{}
	}
	return gin.H{
		"items":       items,
		"page":        page,
		"per_page":    perPage,
		"total_items": total,
		"total_pages": calcTotalPages(total, perPage),
	}
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
