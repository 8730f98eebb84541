// Package policy decides who may manage and attend live classes.
//
// Every rule lives here so handlers and services ask one place and get a
// Decision that carries the reason for a denial.
package policy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aura-learn/backend/internal/models"
)

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotCourseTeacher
	ReasonNotOwner
	ReasonNotEnrolled
)

// String returns a message suitable for API clients.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "allowed"
	case ReasonNotCourseTeacher:
		return "only the course teacher or an admin can create live classes for this course"
	case ReasonNotOwner:
		return "only the class creator, the course teacher or an admin can modify this live class"
	case ReasonNotEnrolled:
		return "you must be enrolled in the course to join this live class"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns nil when allowed, otherwise an error wrapping models.ErrPermissionDenied.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return models.NewError(models.ErrPermissionDenied, d.Reason.String())
}

var allow = Decision{Allowed: true}

func deny(r Reason) Decision { return Decision{Reason: r} }

// Caller is the authenticated user making a request.
type Caller struct {
	ID   uuid.UUID
	Role models.Role
}

// IsAdmin reports whether the caller has the ADMIN role.
func (c Caller) IsAdmin() bool { return c.Role == models.RoleAdmin }

// CanCreate allows the course teacher and admins to schedule classes for course.
func CanCreate(caller Caller, course models.Course) Decision {
	if caller.IsAdmin() || course.TeacherID == caller.ID {
		return allow
	}
	return deny(ReasonNotCourseTeacher)
}

// CanManage allows the class creator, the course teacher and admins to update or delete a class.
func CanManage(caller Caller, class models.LiveClass, course models.Course) Decision {
	if caller.IsAdmin() || class.CreatedByID == caller.ID || course.TeacherID == caller.ID {
		return allow
	}
	return deny(ReasonNotOwner)
}

// CanAttend allows enrolled learners to join a class.
func CanAttend(enrolled bool) Decision {
	if enrolled {
		return allow
	}
	return deny(ReasonNotEnrolled)
}

// CanView allows managers and enrolled learners to see class-level resources
// such as the realtime room and the recording.
func CanView(caller Caller, class models.LiveClass, course models.Course, enrolled bool) Decision {
	if CanManage(caller, class, course).Allowed || enrolled {
		return allow
	}
	return deny(ReasonNotEnrolled)
}
