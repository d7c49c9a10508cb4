package app

import (
	"io"
	"net/http"

	"wishlane/api/internal/parse"
)

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body CreateListInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateList(r.Context(), session, body))

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "mine":
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, err)
			return
		}
		respondList(w)(s.service.ListMyLists(r.Context(), session, limit, offset))

	case r.Method == http.MethodGet && len(seg) == 2 && seg[0] == "byGroup":
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, err)
			return
		}
		respondList(w)(s.service.ListListsByGroup(r.Context(), session, seg[1], limit, offset))

	case r.Method == http.MethodGet && len(seg) == 2 && seg[0] == "byUser":
		limit, offset, err := pageParams(r)
		if err != nil {
			writeError(w, err)
			return
		}
		respondList(w)(s.service.ListListsByUser(r.Context(), session, seg[1], limit, offset))

	case r.Method == http.MethodGet && len(seg) == 2 && seg[1] == "unviewed-count":
		respond(w, http.StatusOK)(s.service.UnviewedCount(r.Context(), session, seg[0]))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetList(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 1:
		var body UpdateListInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpdateList(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.DeleteList(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "List deleted")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body CreateItemInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateItem(r.Context(), session, body))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk":
		var body struct {
			Items []CreateItemInput `json:"items"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.BulkCreateItems(r.Context(), session, body.Items))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-delete":
		var body struct {
			ItemIDs []string `json:"itemIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkDeleteItems(r.Context(), session, body.ItemIDs))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-add-to-list":
		var body struct {
			ItemIDs []string `json:"itemIds"`
			ListID  string   `json:"listId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkAddToList(r.Context(), session, body.ItemIDs, body.ListID))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-visibility":
		var body struct {
			Updates []VisibilityUpdate `json:"updates"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkUpdateVisibility(r.Context(), session, body.Updates))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-publicity-priority":
		var body struct {
			Updates []PublicityUpdate `json:"updates"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkUpdatePublicity(r.Context(), session, body.Updates))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-delete-on-date":
		var body struct {
			Updates []DeleteOnDateUpdate `json:"updates"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkUpdateDeleteOnDate(r.Context(), session, body.Updates))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "bulk-lists":
		var body struct {
			Updates []ListAssignmentUpdate `json:"updates"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.BulkUpdateListAssignments(r.Context(), session, body.Updates))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "viewed":
		var body struct {
			ItemIDs []string `json:"itemIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.MarkItemsViewed(r.Context(), session, body.ItemIDs))

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "viewed":
		respond(w, http.StatusOK)(s.service.ListViewedItems(r.Context(), session))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "seen-from-list":
		var body struct {
			ListID string `json:"listId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.MarkListSeen(r.Context(), session, body.ListID))

	case r.Method == http.MethodGet && len(seg) == 2 && seg[1] == "viewers":
		respond(w, http.StatusOK)(s.service.ListItemViewers(r.Context(), session, seg[0]))

	case r.Method == http.MethodGet && len(seg) == 2 && seg[1] == "view-count":
		respond(w, http.StatusOK)(s.service.ItemViewCount(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 2 && seg[1] == "getting":
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.SetGetting(r.Context(), session, seg[0], body.Status))

	case r.Method == http.MethodDelete && len(seg) == 2 && seg[1] == "getting":
		respond(w, http.StatusOK)(s.service.ClearGetting(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 2 && seg[1] == "go-in-on":
		respond(w, http.StatusOK)(s.service.SetGoInOn(r.Context(), session, seg[0]))

	case r.Method == http.MethodDelete && len(seg) == 2 && seg[1] == "go-in-on":
		respond(w, http.StatusOK)(s.service.ClearGoInOn(r.Context(), session, seg[0]))

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "links":
		var body ItemLinkInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.AddItemLink(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 3 && seg[1] == "links":
		if err := s.service.DeleteItemLink(r.Context(), session, seg[0], seg[2]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Link removed")

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "images":
		var body struct {
			ImageIDs []string `json:"imageIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.AttachJobImages(r.Context(), session, seg[0], body.ImageIDs))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetItem(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 1:
		var body UpdateItemInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpdateItem(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.DeleteItem(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Item deleted")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleGettings(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	if r.Method == http.MethodGet && len(seg) == 0 {
		respond(w, http.StatusOK)(s.service.ListMyGettings(r.Context(), session, r.URL.Query().Get("getterId")))
		return
	}
	writeError(w, notFoundError("route not found"))
}

func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "item-fetch":
		var body struct {
			URL string `json:"url"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.EnqueueItemFetch(r.Context(), session, body.URL))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "wishlist-import":
		var body struct {
			URL string `json:"url"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.EnqueueWishlistImport(r.Context(), session, body.URL))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "csv-import":
		fileName, data, err := readCSVUpload(r)
		if err != nil {
			writeError(w, err)
			return
		}
		respond(w, http.StatusCreated)(s.service.EnqueueCSVImport(r.Context(), session, fileName, data))

	case r.Method == http.MethodGet && len(seg) == 0:
		respondList(w)(s.service.ListJobs(r.Context(), session))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetJob(r.Context(), session, seg[0]))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.CancelJob(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Job cancelled")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

// readCSVUpload pulls the csv file out of a multipart form, enforcing the
// size cap before the body is buffered in full.
func readCSVUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(parse.MaxCSVBytes + 1024); err != nil {
		return "", nil, validationError("a multipart form with a file field is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, validationError("a file field is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, parse.MaxCSVBytes+1))
	if err != nil {
		return "", nil, err
	}
	if len(data) > parse.MaxCSVBytes {
		return "", nil, validationError("csv file exceeds the 10 MiB limit")
	}
	return header.Filename, data, nil
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body CreateGroupInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateGroup(r.Context(), session, body))

	case r.Method == http.MethodGet && len(seg) == 0:
		respondList(w)(s.service.ListMyGroups(r.Context(), session))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetGroup(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 1:
		var body UpdateGroupInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpdateGroup(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.DeleteGroup(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Group deleted")

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "invite":
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.InviteToGroup(r.Context(), session, seg[0], body.Email))

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "join":
		respond(w, http.StatusOK)(s.service.JoinGroup(r.Context(), session, seg[0]))

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "leave":
		if err := s.service.LeaveGroup(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Left the group")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body CreateEventInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateEvent(r.Context(), session, body))

	case r.Method == http.MethodGet && len(seg) == 0:
		respondList(w)(s.service.ListEvents(r.Context(), session))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetEvent(r.Context(), session, seg[0]))

	case r.Method == http.MethodPut && len(seg) == 1:
		var body UpdateEventInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpdateEvent(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.DeleteEvent(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Event deleted")

	case r.Method == http.MethodPut && len(seg) == 2 && seg[1] == "recipients":
		var body EventRecipientInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpsertEventRecipient(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 3 && seg[1] == "recipients":
		if err := s.service.DeleteEventRecipient(r.Context(), session, seg[0], seg[2]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Recipient removed")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleProposals(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodPost && len(seg) == 0:
		var body struct {
			ItemID       string                     `json:"itemId"`
			Participants []ProposalParticipantInput `json:"participants"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateProposal(r.Context(), session, body.ItemID, body.Participants))

	case r.Method == http.MethodGet && len(seg) == 0:
		respondList(w)(s.service.ListProposals(r.Context(), session))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetProposal(r.Context(), session, seg[0]))

	case r.Method == http.MethodPost && len(seg) == 2 && seg[1] == "respond":
		var body ProposalResponseInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.RespondToProposal(r.Context(), session, seg[0], body))

	case r.Method == http.MethodDelete && len(seg) == 1:
		if err := s.service.DeleteProposal(r.Context(), session, seg[0]); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Proposal withdrawn")

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	switch {
	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "me":
		respond(w, http.StatusOK)(s.service.GetMe(r.Context(), session))

	case r.Method == http.MethodPut && len(seg) == 1 && seg[0] == "me":
		var body UpdateMeInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.UpdateMe(r.Context(), session, body))

	case r.Method == http.MethodDelete && len(seg) == 1 && seg[0] == "me":
		if err := s.service.DeleteMe(r.Context(), session); err != nil {
			writeError(w, err)
			return
		}
		writeMessage(w, http.StatusOK, "Account deactivated")

	case r.Method == http.MethodPut && len(seg) == 2 && seg[0] == "me" && seg[1] == "visibility":
		var body struct {
			IsPublic bool `json:"isPublic"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusOK)(s.service.SetMyVisibility(r.Context(), session, body.IsPublic))

	case r.Method == http.MethodPost && len(seg) == 1 && seg[0] == "subusers":
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, validationError(err.Error()))
			return
		}
		respond(w, http.StatusCreated)(s.service.CreateSubuser(r.Context(), session, body.Name))

	case r.Method == http.MethodGet && len(seg) == 1 && seg[0] == "subusers":
		respondList(w)(s.service.ListMySubusers(r.Context(), session))

	case r.Method == http.MethodGet && len(seg) == 1:
		respond(w, http.StatusOK)(s.service.GetUser(r.Context(), session, seg[0]))

	default:
		writeError(w, notFoundError("route not found"))
	}
}

func (s *HTTPServer) handleImages(w http.ResponseWriter, r *http.Request, session Session, seg []string) {
	if r.Method != http.MethodGet || len(seg) != 1 {
		writeError(w, notFoundError("route not found"))
		return
	}
	data, contentType, err := s.service.GetImageBytes(r.Context(), seg[0])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// respond adapts the common (payload, error) service signature to the
// envelope writers.
func respond(w http.ResponseWriter, status int) func(map[string]any, error) {
	return func(payload map[string]any, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, status, payload)
	}
}

func respondList(w http.ResponseWriter) func([]map[string]any, error) {
	return func(payload []map[string]any, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		if payload == nil {
			payload = []map[string]any{}
		}
		writeData(w, http.StatusOK, payload)
	}
}
