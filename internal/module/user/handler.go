package user

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudkit/internal/domain"
	"github.com/simp-lee/crudkit/internal/pkg"
)

// UserHandler serves the /users routes over a domain.UserService.
type UserHandler struct {
	svc domain.UserService
}

func NewUserHandler(svc domain.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// reply sends err when set and otherwise data with send.
func reply(c *gin.Context, data any, err error, send func(*gin.Context, any)) {
	if err != nil {
		pkg.Error(c, err)
		return
	}
	send(c, data)
}

// Create handles POST /users.
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	u, err := h.svc.CreateUser(c.Request.Context(), req.Name, req.Email, req.UniqueName)
	reply(c, u, err, pkg.Created)
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.svc.GetUser(c.Request.Context(), id)
	reply(c, u, err, pkg.Success)
}

// List handles GET /users with page, limit, sort and order plus name and
// email filters. A __like suffix on a filter key matches substrings.
func (h *UserHandler) List(c *gin.Context) {
	params, filter := pkg.ParsePaginationParams(c)
	result, err := h.svc.ListUsers(c.Request.Context(), filter, params)
	reply(c, result, err, pkg.List)
}

// Browse handles GET /users/page, the navigable page with links.
func (h *UserHandler) Browse(c *gin.Context) {
	page, err := h.svc.BrowseUsers(c.Request.Context(), pkg.ParsePageOptions(c))
	reply(c, page, err, pkg.List)
}

// Update handles PUT /users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), id, req.Fields())
	reply(c, u, err, pkg.Success)
}

// UpdateByName handles PUT /users/by-name/:name.
func (h *UserHandler) UpdateByName(c *gin.Context) {
	var req UpdateUserRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	u, err := h.svc.UpdateUserByName(c.Request.Context(), c.Param("name"), req.Fields())
	reply(c, u, err, pkg.Success)
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reply(c, nil, h.svc.DeleteUser(c.Request.Context(), id), pkg.Success)
}

// DeleteMany handles DELETE /users?ids=1,2,3.
func (h *UserHandler) DeleteMany(c *gin.Context) {
	ids, err := pkg.ParseIDs(c.Query("ids"))
	switch {
	case err != nil:
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), err))
		return
	case len(ids) == 0:
		pkg.Error(c, domain.Validationf("ids is required"))
		return
	}
	n, err := h.svc.DeleteUsers(c.Request.Context(), ids)
	reply(c, DeleteUsersResponse{RowsAffected: n}, err, pkg.Success)
}

// pathID reads a positive :id. On failure it writes a 400 and returns false.
func pathID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		pkg.Error(c, domain.Validationf("invalid id %q", raw))
		return 0, false
	}
	return uint(n), true
}
