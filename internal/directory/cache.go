package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/campusgrid/campusgrid/internal/authz"
)

// Source is the uncached lookup contract, satisfied by Repository.
type Source interface {
	authz.MembershipDirectory
}

// CachedDirectory wraps a Source with a Redis read-through cache. Concurrent
// lookups for the same key collapse into one upstream call. Membership data
// changes rarely (enrolment, staffing), so a short TTL keeps staleness
// bounded without invalidation plumbing.
type CachedDirectory struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedDirectory constructs the cache layer. A nil client disables
// caching and passes lookups straight through.
func NewCachedDirectory(source Source, client *redis.Client, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{source: source, client: client, ttl: ttl}
}

// ClassSchool implements authz.MembershipDirectory.
func (d *CachedDirectory) ClassSchool(ctx context.Context, classID uuid.UUID) (uuid.UUID, error) {
	return d.cachedID(ctx, fmt.Sprintf("dir:class:%s:school", classID), func() (uuid.UUID, error) {
		return d.source.ClassSchool(ctx, classID)
	})
}

// StudentSchool implements authz.MembershipDirectory.
func (d *CachedDirectory) StudentSchool(ctx context.Context, studentID uuid.UUID) (uuid.UUID, error) {
	return d.cachedID(ctx, fmt.Sprintf("dir:student:%s:school", studentID), func() (uuid.UUID, error) {
		return d.source.StudentSchool(ctx, studentID)
	})
}

// TeacherTeachesClass implements authz.MembershipDirectory.
func (d *CachedDirectory) TeacherTeachesClass(ctx context.Context, teacherID, classID uuid.UUID) (bool, error) {
	return d.cachedBool(ctx, fmt.Sprintf("dir:teacher:%s:class:%s", teacherID, classID), func() (bool, error) {
		return d.source.TeacherTeachesClass(ctx, teacherID, classID)
	})
}

// TeacherTeachesStudent implements authz.MembershipDirectory.
func (d *CachedDirectory) TeacherTeachesStudent(ctx context.Context, teacherID, studentID uuid.UUID) (bool, error) {
	return d.cachedBool(ctx, fmt.Sprintf("dir:teacher:%s:student:%s", teacherID, studentID), func() (bool, error) {
		return d.source.TeacherTeachesStudent(ctx, teacherID, studentID)
	})
}

// ParentHasChild implements authz.MembershipDirectory.
func (d *CachedDirectory) ParentHasChild(ctx context.Context, parentID, studentID uuid.UUID) (bool, error) {
	return d.cachedBool(ctx, fmt.Sprintf("dir:parent:%s:student:%s", parentID, studentID), func() (bool, error) {
		return d.source.ParentHasChild(ctx, parentID, studentID)
	})
}

// ParentHasChildInClass implements authz.MembershipDirectory.
func (d *CachedDirectory) ParentHasChildInClass(ctx context.Context, parentID, classID uuid.UUID) (bool, error) {
	return d.cachedBool(ctx, fmt.Sprintf("dir:parent:%s:class:%s", parentID, classID), func() (bool, error) {
		return d.source.ParentHasChildInClass(ctx, parentID, classID)
	})
}

func (d *CachedDirectory) cachedID(ctx context.Context, key string, fetch func() (uuid.UUID, error)) (uuid.UUID, error) {
	if d.client != nil {
		if raw, err := d.client.Get(ctx, key).Result(); err == nil {
			if id, err := uuid.Parse(raw); err == nil {
				return id, nil
			}
		}
	}
	v, err, _ := d.group.Do(key, func() (any, error) {
		id, err := fetch()
		if err != nil {
			return uuid.Nil, err
		}
		if d.client != nil {
			_ = d.client.Set(ctx, key, id.String(), d.ttl).Err()
		}
		return id, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return v.(uuid.UUID), nil
}

func (d *CachedDirectory) cachedBool(ctx context.Context, key string, fetch func() (bool, error)) (bool, error) {
	if d.client != nil {
		if raw, err := d.client.Get(ctx, key).Result(); err == nil {
			if ok, err := strconv.ParseBool(raw); err == nil {
				return ok, nil
			}
		}
	}
	v, err, _ := d.group.Do(key, func() (any, error) {
		ok, err := fetch()
		if err != nil {
			return false, err
		}
		if d.client != nil {
			_ = d.client.Set(ctx, key, strconv.FormatBool(ok), d.ttl).Err()
		}
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
