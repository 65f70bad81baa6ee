package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fieldops.org/internal/audit"
	"fieldops.org/internal/auth"
	"fieldops.org/internal/directory"
)

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, "resource already exists")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// scopedID extracts the resource id from a path like /v1/users/{id} and
// optionally one trailing action segment.
func scopedID(path, prefix string) (id, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

// Users ---------------------------------------------------------------------

type createUserRequest struct {
	Login    string `json:"login" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	RoleID   string `json:"role_id"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type updateUserRequest struct {
	Name   *string `json:"name"`
	RoleID *string `json:"role_id"`
	Status *string `json:"status"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensureCapability(w, r, auth.CapUsersView); !ok {
			return
		}
		users, err := a.directory.ListUsers(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, users)

	case http.MethodPost:
		if _, ok := a.ensureCapability(w, r, auth.CapUsersAdd); !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.directory.CreateUser(r.Context(), req.Login, req.Name, req.Password, req.RoleID, req.Status)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.create", map[string]any{"user_id": user.ID})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	id, action, ok := scopedID(r.URL.Path, "/v1/users/")
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if action == "password" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if _, ok := a.ensureCapability(w, r, auth.CapUsersEdit); !ok {
			return
		}
		var req resetPasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		// Administrative reset: the version bump inside the store write kills
		// every session the user had.
		if err := a.auth.ResetPassword(r.Context(), id, req.NewPassword); err != nil {
			switch {
			case errors.Is(err, auth.ErrUnknownPrincipal):
				writeError(w, r, http.StatusNotFound, "User not found")
			case errors.Is(err, auth.ErrStoreUnavailable):
				writeError(w, r, http.StatusServiceUnavailable, "Credential store unavailable")
			default:
				writeError(w, r, http.StatusBadRequest, err.Error())
			}
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.password_reset", map[string]any{"user_id": id})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
		return
	}
	if action != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := a.ensureCapability(w, r, auth.CapUsersView); !ok {
			return
		}
		user, err := a.directory.GetUser(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPut:
		if _, ok := a.ensureCapability(w, r, auth.CapUsersEdit); !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.directory.UpdateUser(r.Context(), id, directory.UserUpdate{
			Name:   req.Name,
			RoleID: req.RoleID,
			Status: req.Status,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.update", map[string]any{"user_id": id})
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		if _, ok := a.ensureCapability(w, r, auth.CapUsersDelete); !ok {
			return
		}
		if err := a.directory.DeleteUser(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.delete", map[string]any{"user_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// Roles ---------------------------------------------------------------------

type createRoleRequest struct {
	Name         string          `json:"name" validate:"required"`
	Capabilities map[string]bool `json:"capabilities"`
}

type updateRoleRequest struct {
	Name         *string         `json:"name"`
	Capabilities map[string]bool `json:"capabilities"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensureCapability(w, r, auth.CapRolesManage); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.directory.ListRoles(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)

	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.directory.CreateRole(r.Context(), req.Name, req.Capabilities)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.create", map[string]any{"role_id": role.ID})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	id, action, ok := scopedID(r.URL.Path, "/v1/roles/")
	if !ok || action != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if _, ok := a.ensureCapability(w, r, auth.CapRolesManage); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		role, err := a.directory.GetRole(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)

	case http.MethodPut:
		var req updateRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.directory.UpdateRole(r.Context(), id, directory.RoleUpdate{
			Name:         req.Name,
			Capabilities: req.Capabilities,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.update", map[string]any{"role_id": id})
		writeJSON(w, http.StatusOK, role)

	case http.MethodDelete:
		if err := a.directory.DeleteRole(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.role.delete", map[string]any{"role_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// Clients -------------------------------------------------------------------

type createClientRequest struct {
	Name    string `json:"name" validate:"required"`
	Code    string `json:"code"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type updateClientRequest struct {
	Name    *string `json:"name"`
	Code    *string `json:"code"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Status  *string `json:"status"`
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensureCapability(w, r, auth.CapClientsManage); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		clients, err := a.directory.ListClients(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, clients)

	case http.MethodPost:
		var req createClientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.directory.CreateClient(r.Context(), req.Name, req.Code, req.Phone, req.Address)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.client.create", map[string]any{"client_id": client.ID})
		w.Header().Set("Location", fmt.Sprintf("/v1/clients/%s", client.ID))
		writeJSON(w, http.StatusCreated, client)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientScoped(w http.ResponseWriter, r *http.Request) {
	id, action, ok := scopedID(r.URL.Path, "/v1/clients/")
	if !ok || action != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if _, ok := a.ensureCapability(w, r, auth.CapClientsManage); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, err := a.directory.GetClient(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)

	case http.MethodPut:
		var req updateClientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.directory.UpdateClient(r.Context(), id, directory.ClientUpdate{
			Name:    req.Name,
			Code:    req.Code,
			Phone:   req.Phone,
			Address: req.Address,
			Status:  req.Status,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.client.update", map[string]any{"client_id": id})
		writeJSON(w, http.StatusOK, client)

	case http.MethodDelete:
		if err := a.directory.DeleteClient(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.client.delete", map[string]any{"client_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// Products ------------------------------------------------------------------

type createProductRequest struct {
	Name      string `json:"name" validate:"required"`
	Code      string `json:"code"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

type updateProductRequest struct {
	Name      *string `json:"name"`
	Code      *string `json:"code"`
	UnitPrice *int64  `json:"unit_price"`
	Status    *string `json:"status"`
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.ensureCapability(w, r, auth.CapProductsManage); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		products, err := a.directory.ListProducts(r.Context())
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, products)

	case http.MethodPost:
		var req createProductRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.directory.CreateProduct(r.Context(), req.Name, req.Code, req.UnitPrice)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.product.create", map[string]any{"product_id": product.ID})
		w.Header().Set("Location", fmt.Sprintf("/v1/products/%s", product.ID))
		writeJSON(w, http.StatusCreated, product)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProductScoped(w http.ResponseWriter, r *http.Request) {
	id, action, ok := scopedID(r.URL.Path, "/v1/products/")
	if !ok || action != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if _, ok := a.ensureCapability(w, r, auth.CapProductsManage); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.directory.GetProduct(r.Context(), id)
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)

	case http.MethodPut:
		var req updateProductRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		product, err := a.directory.UpdateProduct(r.Context(), id, directory.ProductUpdate{
			Name:      req.Name,
			Code:      req.Code,
			UnitPrice: req.UnitPrice,
			Status:    req.Status,
		})
		if err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.product.update", map[string]any{"product_id": id})
		writeJSON(w, http.StatusOK, product)

	case http.MethodDelete:
		if err := a.directory.DeleteProduct(r.Context(), id); err != nil {
			handleDirectoryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.product.delete", map[string]any{"product_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
