package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"board-service/domain"
	"board-service/live"
)

// Services bundles what the routes call into.
type Services struct {
	Boards  domain.BoardService
	Columns domain.ColumnService
	Tasks   domain.TaskService
	Live    *live.Handler
}

// Options tunes the HTTP surface. Nil Registerer and Gatherer select the
// Prometheus defaults.
type Options struct {
	RateLimit      RateLimit
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, opts Options, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.HTTPErrorHandler = errorHandler(logger)
	e.JSONSerializer = sonicSerializer{}

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "board_api",
		Registerer: opts.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/healthz"
		},
	}))
	e.Use(GzipRequestMiddleware())

	e.GET("/healthz", healthz)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: opts.Gatherer}))

	pool := newLimiterPool(opts.RateLimit)
	read := func(op string) []echo.MiddlewareFunc {
		return []echo.MiddlewareFunc{instrument(logger, op), authenticate(auth, false)}
	}
	write := func(op string) []echo.MiddlewareFunc {
		return append(read(op), limit(pool))
	}

	e.POST("/board", createBoard(svc.Boards), write("board.create")...)
	e.GET("/board", listBoards(svc.Boards), read("board.list")...)
	e.GET("/board/:boardId", getBoard(svc.Boards), read("board.get")...)
	e.PUT("/board/:boardId", updateBoard(svc.Boards), write("board.update")...)
	e.DELETE("/board/:boardId", deleteBoard(svc.Boards), write("board.delete")...)
	e.GET("/board/:boardId/members", listMembers(svc.Boards), read("board.members")...)
	e.POST("/board/member", addMember(svc.Boards), write("member.add")...)
	e.PUT("/board/member", changeRole(svc.Boards), write("member.role")...)
	e.DELETE("/board/member", removeMember(svc.Boards), write("member.remove")...)

	e.POST("/column", createColumn(svc.Columns), write("column.create")...)
	e.GET("/column/:columnId", getColumn(svc.Columns), read("column.get")...)
	e.GET("/column/board/:boardId", listColumns(svc.Columns), read("column.list")...)
	e.PUT("/column/:columnId", updateColumn(svc.Columns), write("column.update")...)
	e.PUT("/column/:columnId/move/:position", moveColumn(svc.Columns), write("column.move")...)
	e.DELETE("/column/:columnId", deleteColumn(svc.Columns), write("column.delete")...)

	e.POST("/task", createTask(svc.Tasks), write("task.create")...)
	e.GET("/task/:taskId", getTask(svc.Tasks), read("task.get")...)
	e.GET("/task/column/:columnId", listTasks(svc.Tasks), read("task.list")...)
	e.PUT("/task/:taskId", updateTask(svc.Tasks), write("task.update")...)
	e.PUT("/task/:taskId/move/:columnId/:position", moveTask(svc.Tasks), write("task.move")...)
	e.DELETE("/task/:taskId", deleteTask(svc.Tasks), write("task.delete")...)

	if svc.Live != nil {
		upgrader := newUpgrader(opts.AllowedOrigins)
		e.GET("/ws/board/:boardId", watchBoard(svc.Boards, svc.Live, upgrader), authenticate(auth, true))
	}
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func position(c echo.Context) (int, error) {
	raw := c.Param("position")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("position must be an integer", err)
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func createBoard(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.CreateBoardInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		b, err := boards.Create(c.Request().Context(), userID(c), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func listBoards(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := boards.List(c.Request().Context(), userID(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, nonNil(list))
	}
}

func getBoard(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := boards.Get(c.Request().Context(), userID(c), c.Param("boardId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, b)
	}
}

func updateBoard(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.UpdateBoardInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		b, err := boards.Update(c.Request().Context(), userID(c), c.Param("boardId"), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, b)
	}
}

func deleteBoard(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := boards.Delete(c.Request().Context(), userID(c), c.Param("boardId")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listMembers(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		members, err := boards.Members(c.Request().Context(), userID(c), c.Param("boardId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, nonNil(members))
	}
}

func addMember(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.MemberInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		m, err := boards.AddMember(c.Request().Context(), userID(c), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, m)
	}
}

func changeRole(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.ChangeRoleInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		m, err := boards.ChangeRole(c.Request().Context(), userID(c), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m)
	}
}

func removeMember(boards domain.BoardService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.MemberInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		if err := boards.RemoveMember(c.Request().Context(), userID(c), in); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func createColumn(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.CreateColumnInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		col, err := columns.Create(c.Request().Context(), userID(c), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, col)
	}
}

func getColumn(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		col, err := columns.Get(c.Request().Context(), userID(c), c.Param("columnId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, col)
	}
}

func listColumns(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		cols, err := columns.List(c.Request().Context(), userID(c), c.Param("boardId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, nonNil(cols))
	}
}

func updateColumn(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.UpdateColumnInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		col, err := columns.Update(c.Request().Context(), userID(c), c.Param("columnId"), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, col)
	}
}

func moveColumn(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, err := position(c)
		if err != nil {
			return err
		}
		col, err := columns.Move(c.Request().Context(), userID(c), c.Param("columnId"), target)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, col)
	}
}

func deleteColumn(columns domain.ColumnService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := columns.Delete(c.Request().Context(), userID(c), c.Param("columnId")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func createTask(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.CreateTaskInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		t, err := tasks.Create(c.Request().Context(), userID(c), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func getTask(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := tasks.Get(c.Request().Context(), userID(c), c.Param("taskId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func listTasks(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := tasks.List(c.Request().Context(), userID(c), c.Param("columnId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, nonNil(list))
	}
}

func updateTask(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.UpdateTaskInput
		if err := decodeBody(c, &in); err != nil {
			return err
		}
		t, err := tasks.Update(c.Request().Context(), userID(c), c.Param("taskId"), in)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func moveTask(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, err := position(c)
		if err != nil {
			return err
		}
		t, err := tasks.Move(c.Request().Context(), userID(c), c.Param("taskId"), c.Param("columnId"), target)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(tasks domain.TaskService) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := tasks.Delete(c.Request().Context(), userID(c), c.Param("taskId")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func newUpgrader(origins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(origins) == 0 {
		u.CheckOrigin = func(*http.Request) bool { return true }
		return u
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			u.CheckOrigin = func(*http.Request) bool { return true }
			return u
		}
		allowed[o] = struct{}{}
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
	return u
}

// watchBoard upgrades to a websocket and streams the board's events until
// either side hangs up. Access is checked before the upgrade so failures are
// ordinary HTTP errors.
func watchBoard(boards domain.BoardService, h *live.Handler, upgrader *websocket.Upgrader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID := c.Param("boardId")
		actor := userID(c)
		if err := boards.VerifyAccess(ctx, boardID, actor); err != nil {
			return err
		}
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// The upgrader has already replied.
			return nil
		}
		h.Serve(ctx, boardID, actor, live.NewGorillaConn(ws))
		return nil
	}
}
