package leaderboard

import (
	"fmt"
	"sort"
	"testing"

	"campkit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update("a", 10)
	s.Update("b", 20)
	s.Update("c", 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != "b" || top[1].User != "c" || top[2].User != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	if top[0].Rank != 1 || top[2].Rank != 3 {
		t.Fatalf("unexpected ranks: %#v", top)
	}
	s.Update("a", 25)
	top = s.TopN(1)
	if top[0].User != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
}

func TestSkipListTiesOrderByUser(t *testing.T) {
	s := NewSkipList()
	s.Update("zed", 50)
	s.Update("amy", 50)
	top := s.TopN(2)
	if top[0].User != "amy" || top[1].User != "zed" {
		t.Fatalf("ties should order by user id: %#v", top)
	}
}

func TestSkipListGetRankMatchesTopN(t *testing.T) {
	s := NewSkipList()
	for i := 0; i < 200; i++ {
		s.Update(core.UserID(fmt.Sprintf("u%03d", i)), int64((i*37)%101))
	}
	for i := 0; i < 50; i++ {
		s.Update(core.UserID(fmt.Sprintf("u%03d", i)), int64(i*3))
	}
	s.Remove("u199")
	s.Remove("missing")

	if s.Len() != 199 {
		t.Fatalf("len = %d", s.Len())
	}
	top := s.TopN(1000)
	if len(top) != 199 {
		t.Fatalf("topN len = %d", len(top))
	}
	if !sort.SliceIsSorted(top, func(i, j int) bool { return less(top[i], top[j]) }) {
		t.Fatal("topN not sorted")
	}
	for _, e := range top {
		got, ok := s.Get(e.User)
		if !ok {
			t.Fatalf("missing %s", e.User)
		}
		if got.Rank != e.Rank || got.Points != e.Points {
			t.Fatalf("get %s = %#v, topN says %#v", e.User, got, e)
		}
	}
	if _, ok := s.Get("u199"); ok {
		t.Fatal("removed user still ranked")
	}
}

func TestSkipListTopNNonPositive(t *testing.T) {
	s := NewSkipList()
	s.Update("a", 1)
	if s.TopN(0) != nil {
		t.Fatal("expected nil for n=0")
	}
}
