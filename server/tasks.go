package server

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"chatrelay/db"
	"chatrelay/models"
	"chatrelay/protocol"
)

const (
	statusPending    = "pending"
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
)

func isValidStatus(status string) bool {
	return status == statusPending || status == statusInProgress || status == statusCompleted
}

func isTaskField(name string) bool {
	switch name {
	case "description", "status", "deadline", "assignee":
		return true
	}
	return false
}

// parseTaskFields reads field/value pairs from the argument list. A
// description value spans tokens until the next field keyword; other values
// are single tokens. A repeated field keeps the last value.
func parseTaskFields(args []string) ([]db.TaskField, *protocol.Error) {
	var fields []db.TaskField

	i := 0
	for i < len(args) {
		field := strings.ToLower(args[i])
		if !isTaskField(field) {
			return nil, protocol.Validationf("task",
				"Invalid field: "+field+". Must be: description, status, deadline, or assignee")
		}

		i++
		if i >= len(args) {
			return nil, protocol.Validationf("task", "Missing value for field: "+field)
		}

		var value string
		if field == "description" {
			var parts []string
			for i < len(args) && !isTaskField(strings.ToLower(args[i])) {
				parts = append(parts, args[i])
				i++
			}
			value = strings.TrimSpace(strings.Join(parts, " "))
		} else {
			value = args[i]
			i++
		}

		replaced := false
		for j := range fields {
			if fields[j].Name == field {
				fields[j].Value = value
				replaced = true
				break
			}
		}
		if !replaced {
			fields = append(fields, db.TaskField{Name: field, Value: value})
		}
	}

	return fields, nil
}

func fieldValue(fields []db.TaskField, name string) (string, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (s *Server) handleCreateTask(sess *Session, args []string) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("createTask", "You must be logged in."))
		return
	}

	if len(args) < 2 {
		s.replyError(sess, protocol.Protocolf("createTask",
			"usage: createTask description <task_description> [status <status>] [deadline <deadline>] [assignee <username>]"))
		s.reply(sess, "Example: createTask description Fix bug status in_progress deadline 2026-01-08 assignee alice")
		s.reply(sess, "Status options: pending, in_progress, completed")
		return
	}

	fields, perr := parseTaskFields(args)
	if perr != nil {
		s.replyError(sess, perr)
		return
	}

	description, _ := fieldValue(fields, "description")
	status, hasStatus := fieldValue(fields, "status")
	if !hasStatus {
		status = statusPending
	}
	deadline, _ := fieldValue(fields, "deadline")
	assignee, _ := fieldValue(fields, "assignee")

	if description == "" {
		s.replyError(sess, protocol.Validationf("createTask", "Task description is required."))
		return
	}
	if utf8.RuneCountInString(description) > maxBodyLength {
		s.replyError(sess, protocol.Validationf("createTask",
			"Task description too long. Maximum length is 2000 characters."))
		return
	}
	if !isValidStatus(status) {
		s.replyError(sess, protocol.Validationf("createTask",
			"Invalid status. Must be: pending, in_progress, or completed"))
		return
	}
	// A task cannot be born completed.
	if status == statusCompleted {
		s.replyError(sess, protocol.Validationf("createTask",
			"Cannot create a task with 'completed' status. Use 'updateTask' to mark as completed after creation."))
		return
	}

	if assignee != "" {
		if perr := s.requireUser(assignee, "createTask"); perr != nil {
			s.replyError(sess, perr)
			return
		}
	}

	id, err := s.db.CreateTask(sess.Username, description, status, deadline, assignee)
	if err != nil {
		s.log.Error("task create failed", "creator", sess.Username, "error", err)
		s.replyError(sess, protocol.Storagef("createTask", "Failed to create task."))
		return
	}

	s.reply(sess, "TASK CREATED: Task #"+strconv.FormatInt(id, 10))
}

func (s *Server) handleViewTasks(sess *Session, args []string) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("viewTasks", "You must be logged in."))
		return
	}

	filter := ""
	if len(args) >= 1 {
		filter = args[0]
	}

	tasks, err := s.db.GetTasks(filter)
	if err != nil {
		s.log.Error("task query failed", "error", err)
		s.replyError(sess, protocol.Storagef("viewTasks", "Failed to retrieve tasks."))
		return
	}

	if filter != "" {
		s.reply(sess, "=== TASKS (Assigned to: "+filter+") ===")
	} else {
		s.reply(sess, "=== TASKS ===")
	}
	for _, t := range tasks {
		s.reply(sess, formatTaskLine(t))
	}
	if len(tasks) == 0 {
		s.reply(sess, "No tasks found.")
	}
	s.reply(sess, "============")
}

func formatTaskLine(t models.Task) string {
	var b strings.Builder
	b.WriteString("Task #" + strconv.FormatInt(t.ID, 10) + ": " + t.Description)
	b.WriteString(" [Creator: " + t.Creator + "]")
	if t.Assignee != "" {
		b.WriteString(" [Assigned to: " + t.Assignee + "]")
	} else {
		b.WriteString(" [Unassigned]")
	}
	if t.Status != "" {
		b.WriteString(" [Status: " + t.Status + "]")
	}
	if t.Deadline != "" {
		b.WriteString(" [Deadline: " + t.Deadline + "]")
	}
	return b.String()
}

func (s *Server) handleUpdateTask(sess *Session, args []string) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("updateTask", "You must be logged in."))
		return
	}

	if len(args) < 3 {
		s.replyError(sess, protocol.Protocolf("updateTask",
			"usage: updateTask <task_id> [field value] [field value] ..."))
		s.reply(sess, "Fields: description, status, deadline, assignee")
		return
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.replyError(sess, protocol.Validationf("updateTask", "Task ID must be a number."))
		return
	}

	task, err := s.db.GetTask(id)
	if err == db.ErrNoRows {
		s.replyError(sess, protocol.NotFoundf("updateTask",
			"Task with ID "+args[0]+" not found."))
		return
	}
	if err != nil {
		s.log.Error("task lookup failed", "task", id, "error", err)
		s.replyError(sess, protocol.Storagef("updateTask", "Failed to update task."))
		return
	}

	fields, perr := parseTaskFields(args[1:])
	if perr != nil {
		s.replyError(sess, perr)
		return
	}
	if len(fields) == 0 {
		s.replyError(sess, protocol.Validationf("updateTask", "No fields to update."))
		return
	}

	for _, f := range fields {
		if perr := s.authorizeTaskUpdate(sess.Username, task, f); perr != nil {
			s.replyError(sess, perr)
			return
		}
	}

	if err := s.db.UpdateTask(id, fields); err != nil {
		s.log.Error("task update failed", "task", id, "error", err)
		s.replyError(sess, protocol.Storagef("updateTask", "Failed to update task."))
		return
	}

	var b strings.Builder
	b.WriteString("TASK UPDATED: Task #" + strconv.FormatInt(id, 10))
	for _, f := range fields {
		b.WriteString(" " + f.Name + "=" + f.Value)
	}
	s.reply(sess, b.String())
}

// authorizeTaskUpdate enforces the per-field rules: creator owns description,
// deadline, assignee, and the pending/in_progress statuses; only the current
// assignee may complete a task, and only if one is set.
func (s *Server) authorizeTaskUpdate(username string, task *models.Task, f db.TaskField) *protocol.Error {
	switch f.Name {
	case "description":
		if f.Value == "" {
			return protocol.Validationf("updateTask", "Description cannot be empty.")
		}
		if utf8.RuneCountInString(f.Value) > maxBodyLength {
			return protocol.Validationf("updateTask",
				"Task description too long. Maximum length is 2000 characters.")
		}
		if task.Creator != username {
			return protocol.Authorizationf("updateTask",
				"You can only update description of tasks that you created.")
		}

	case "status":
		if !isValidStatus(f.Value) {
			return protocol.Validationf("updateTask",
				"Invalid status. Must be: pending, in_progress, or completed")
		}
		if f.Value == statusCompleted {
			if task.Assignee == "" {
				return protocol.Validationf("updateTask",
					"Task is not assigned to anyone. Assign the task first.")
			}
			if task.Assignee != username {
				return protocol.Authorizationf("updateTask",
					"Only the assigned user can mark a task as completed.")
			}
		} else if task.Creator != username {
			return protocol.Authorizationf("updateTask",
				"You can only update status of tasks that you created.")
		}

	case "deadline":
		if task.Creator != username {
			return protocol.Authorizationf("updateTask",
				"You can only update deadline of tasks that you created.")
		}

	case "assignee":
		if task.Creator != username {
			return protocol.Authorizationf("updateTask",
				"You can only update assignee of tasks that you created.")
		}
		if perr := s.requireUser(f.Value, "updateTask"); perr != nil {
			return perr
		}
	}

	return nil
}

func (s *Server) handleDeleteTask(sess *Session, args []string) {
	if sess.Username == "" {
		s.replyError(sess, protocol.Authf("deleteTask", "You must be logged in."))
		return
	}

	if len(args) < 1 {
		s.replyError(sess, protocol.Protocolf("deleteTask", "usage: deleteTask <task_id>"))
		return
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.replyError(sess, protocol.Validationf("deleteTask", "Task ID must be a number."))
		return
	}

	task, err := s.db.GetTask(id)
	if err == db.ErrNoRows {
		s.replyError(sess, protocol.NotFoundf("deleteTask",
			"Task with ID "+args[0]+" not found."))
		return
	}
	if err != nil {
		s.log.Error("task lookup failed", "task", id, "error", err)
		s.replyError(sess, protocol.Storagef("deleteTask", "Failed to delete task."))
		return
	}

	if task.Creator != sess.Username {
		s.replyError(sess, protocol.Authorizationf("deleteTask",
			"You can only delete tasks that you created."))
		return
	}

	if err := s.db.DeleteTask(id); err != nil {
		s.log.Error("task delete failed", "task", id, "error", err)
		s.replyError(sess, protocol.Storagef("deleteTask", "Failed to delete task."))
		return
	}

	s.reply(sess, "TASK DELETED: Task #"+strconv.FormatInt(id, 10)+" has been deleted.")
}

// requireUser checks that a referenced user exists in the store.
func (s *Server) requireUser(username, op string) *protocol.Error {
	exists, err := s.db.UserExists(username)
	if err != nil {
		s.log.Error("user lookup failed", "user", username, "error", err)
		return protocol.Storagef(op, "Failed to check user.")
	}
	if !exists {
		return protocol.NotFoundf(op, "User '"+username+"' not found.")
	}
	return nil
}
