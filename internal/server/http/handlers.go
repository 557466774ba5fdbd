package internalhttp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Fuchsoria/revenue-admin/internal/app"
)

type handlers struct {
	app         Application
	logger      Logger
	uploadLimit int64
}

type emailRequest struct {
	Email string `json:"email"`
}

type roleRequest struct {
	RoleID int64 `json:"role_id"`
}

type siteRequest struct {
	Link string `json:"link"`
}

type channelRequest struct {
	Name       string `json:"name"`
	PublicName string `json:"public_name"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

func (h *handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.app.ListRoles(r.Context())
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, roles)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.ListUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	info, err := h.app.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req app.NewUser
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	user, err := h.app.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *handlers) inviteUser(w http.ResponseWriter, r *http.Request) {
	var req app.Invite
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	user, err := h.app.InviteUser(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	if err := h.app.DeleteUser(r.Context(), actor(r.Context()), id); err != nil {
		writeError(w, h.logger, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changeEmail(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	if err := h.app.ChangeUserEmail(r.Context(), id, req.Email); err != nil {
		writeError(w, h.logger, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changeRole(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	if err := h.app.ChangeAccountType(r.Context(), actor(r.Context()), id, req.RoleID); err != nil {
		writeError(w, h.logger, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listSites(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	sites, err := h.app.ListSites(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, sites)
}

func (h *handlers) addSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	var req siteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	site, err := h.app.AddSite(r.Context(), id, req.Link)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusCreated, site)
}

func (h *handlers) deleteSites(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	link := strings.TrimSpace(r.URL.Query().Get("link"))
	if link == "" {
		writeError(w, h.logger, &app.ValidationError{Field: "link", Message: "Link is required."})

		return
	}

	deleted, err := h.app.DeleteSites(r.Context(), id, link)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, deletedResponse{Deleted: deleted})
}

func (h *handlers) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.app.ListChannels(r.Context(), r.URL.Query().Get("visible") == "true")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *handlers) addChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)

		return
	}

	channel, err := h.app.AddChannel(r.Context(), req.Name, req.PublicName)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

// uploadRevenue takes a multipart form with the report in "upload" and the target
// site_id and channel_id fields.
func (h *handlers) uploadRevenue(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Report is too large.")

			return
		}

		writeError(w, h.logger, &app.ValidationError{Field: "upload", Message: "Multipart form expected."})

		return
	}

	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	siteID, err := parseID("site_id", r.FormValue("site_id"))
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	channelID, err := parseID("channel_id", r.FormValue("channel_id"))
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	file, header, err := r.FormFile("upload")
	if err != nil {
		writeError(w, h.logger, &app.ValidationError{Field: "upload", Message: "Report file is required."})

		return
	}
	defer file.Close()

	result, err := h.app.Ingest(r.Context(), app.IngestRequest{
		UserID:    userID,
		ChannelID: channelID,
		SiteID:    siteID,
		Filename:  header.Filename,
		Body:      file,
	})
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	if !result.OK {
		h.logger.Warn("report stored without ingestion", "reason", result.Reason, "network", result.Network)
	}

	writeJSON(w, http.StatusOK, result)
}

// chart is open to the chart owner and to administrators.
func (h *handlers) chart(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	if actorID := actor(r.Context()); actorID != userID {
		admin, err := h.app.IsAdmin(r.Context(), actorID)
		if err != nil {
			writeError(w, h.logger, err)

			return
		}

		if !admin {
			writeMessage(w, http.StatusForbidden, "chart of another user")

			return
		}
	}

	payload, err := h.app.BuildSeries(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)

		return
	}

	writeJSON(w, http.StatusOK, payload)
}
