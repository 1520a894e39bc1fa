package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	school  uuid.UUID
	teaches bool
	calls   int
}

func (s *countingSource) ClassSchool(context.Context, uuid.UUID) (uuid.UUID, error) {
	s.calls++
	return s.school, nil
}

func (s *countingSource) StudentSchool(context.Context, uuid.UUID) (uuid.UUID, error) {
	s.calls++
	return s.school, nil
}

func (s *countingSource) TeacherTeachesClass(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.calls++
	return s.teaches, nil
}

func (s *countingSource) TeacherTeachesStudent(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.calls++
	return s.teaches, nil
}

func (s *countingSource) ParentHasChild(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.calls++
	return s.teaches, nil
}

func (s *countingSource) ParentHasChildInClass(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	s.calls++
	return s.teaches, nil
}

func TestCachedDirectory(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := &countingSource{school: uuid.New(), teaches: true}
	dir := NewCachedDirectory(src, client, time.Minute)
	classID := uuid.New()

	got, err := dir.ClassSchool(ctx, classID)
	require.NoError(t, err)
	require.Equal(t, src.school, got)
	require.Equal(t, 1, src.calls)

	// Second lookup is served from the cache.
	got, err = dir.ClassSchool(ctx, classID)
	require.NoError(t, err)
	require.Equal(t, src.school, got)
	require.Equal(t, 1, src.calls)

	// A different class misses.
	_, err = dir.ClassSchool(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)

	// Expiry forces a refetch.
	mr.FastForward(2 * time.Minute)
	_, err = dir.ClassSchool(ctx, classID)
	require.NoError(t, err)
	require.Equal(t, 3, src.calls)
}

func TestCachedDirectoryBoolLookups(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := &countingSource{teaches: false}
	dir := NewCachedDirectory(src, client, time.Minute)
	teacherID := uuid.New()
	classID := uuid.New()

	// Negative answers are cached too.
	for i := 0; i < 3; i++ {
		ok, err := dir.TeacherTeachesClass(ctx, teacherID, classID)
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, 1, src.calls)
}

func TestCachedDirectoryWithoutRedis(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{school: uuid.New()}
	dir := NewCachedDirectory(src, nil, time.Minute)
	studentID := uuid.New()

	for i := 0; i < 2; i++ {
		got, err := dir.StudentSchool(ctx, studentID)
		require.NoError(t, err)
		require.Equal(t, src.school, got)
	}
	// No cache: every lookup goes upstream.
	require.Equal(t, 2, src.calls)
}
