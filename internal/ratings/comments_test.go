package ratings

import (
	"context"
	"testing"
	"time"
)

func TestToggleReactionTwiceRestoresCounts(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	rating := mustSubmit(t, fixture, validSubmission("fp-author"))

	request := ToggleRequest{RatingID: rating.ID, Fingerprint: "fp-reader", Reaction: string(ReactionGoat), IPAddress: "198.51.100.4"}

	first, err := fixture.service.ToggleReaction(ctx, request)
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if !first.Active || first.Counts[ReactionGoat] != 1 {
		t.Fatalf("expected active reaction with count 1, got %+v", first)
	}
	if first.Counts[ReactionFire] != 0 || first.Counts[ReactionLaugh] != 0 {
		t.Fatalf("expected every emoji key to be present with zero, got %+v", first.Counts)
	}

	second, err := fixture.service.ToggleReaction(ctx, request)
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if second.Active {
		t.Fatalf("expected reaction to be removed")
	}
	if second.Counts.Total() != 0 || len(second.Counts) != len(Reactions) {
		t.Fatalf("expected counts to return to zero, got %+v", second.Counts)
	}
}

func TestToggleReactionValidation(t *testing.T) {
	fixture := newFixture(t)
	rating := mustSubmit(t, fixture, validSubmission("fp-author"))

	testCases := []struct {
		name    string
		request ToggleRequest
		code    string
	}{
		{name: "missing reaction", request: ToggleRequest{RatingID: rating.ID, Fingerprint: "fp"}, code: "missing_required_fields"},
		{name: "missing rating", request: ToggleRequest{Fingerprint: "fp", Reaction: "🔥"}, code: "missing_required_fields"},
		{name: "unknown emoji", request: ToggleRequest{RatingID: rating.ID, Fingerprint: "fp", Reaction: "👍"}, code: "invalid_reaction"},
		{name: "unknown rating", request: ToggleRequest{RatingID: "0190b5d2-2f4e-7c1a-9a3b-1f2e3d4c5b6a", Fingerprint: "fp", Reaction: "🔥"}, code: "rating_not_found"},
		{name: "malformed rating id", request: ToggleRequest{RatingID: "42", Fingerprint: "fp", Reaction: "🔥"}, code: "rating_not_found"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.service.ToggleReaction(context.Background(), testCase.request)
			expectCode(t, err, testCase.code)
		})
	}
}

func TestToggleLike(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	rating := mustSubmit(t, fixture, validSubmission("fp-author"))

	_, err := fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: rating.ID})
	expectCode(t, err, "missing_required_fields")

	_, err = fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: "0190b5d2-2f4e-7c1a-9a3b-1f2e3d4c5b6a", Fingerprint: "fp-a"})
	expectCode(t, err, "rating_not_found")

	first, err := fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: rating.ID, Fingerprint: "fp-a"})
	if err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if !first.Liked || first.LikesCount != 1 {
		t.Fatalf("unexpected first like result %+v", first)
	}

	other, err := fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: rating.ID, Fingerprint: "fp-b"})
	if err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if !other.Liked || other.LikesCount != 2 {
		t.Fatalf("unexpected second like result %+v", other)
	}

	undo, err := fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: rating.ID, Fingerprint: "fp-a"})
	if err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	if undo.Liked || undo.LikesCount != 1 {
		t.Fatalf("unexpected unlike result %+v", undo)
	}
}

func TestListCommentsEnrichesForViewer(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()

	silent := mustSubmit(t, fixture, validSubmission("fp-silent"))

	fixture.clock.Advance(time.Minute)
	older := validSubmission("fp-a")
	older.Comment = "jugosa"
	olderRating := mustSubmit(t, fixture, older)

	fixture.clock.Advance(time.Minute)
	newer := validSubmission("fp-b")
	newer.Comment = "fría"
	newerRating := mustSubmit(t, fixture, newer)

	for _, request := range []ToggleRequest{
		{RatingID: olderRating.ID, Fingerprint: "fp-viewer", Reaction: string(ReactionFire)},
		{RatingID: olderRating.ID, Fingerprint: "fp-other", Reaction: string(ReactionFire)},
		{RatingID: olderRating.ID, Fingerprint: "fp-viewer", Reaction: string(ReactionLaugh)},
	} {
		if _, err := fixture.service.ToggleReaction(ctx, request); err != nil {
			t.Fatalf("reaction failed: %v", err)
		}
	}
	if _, err := fixture.service.ToggleLike(ctx, ToggleRequest{RatingID: newerRating.ID, Fingerprint: "fp-viewer"}); err != nil {
		t.Fatalf("like failed: %v", err)
	}

	comments, err := fixture.service.ListComments(ctx, "fp-viewer")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected two commented ratings, got %d", len(comments))
	}
	if comments[0].Rating.ID != newerRating.ID || comments[1].Rating.ID != olderRating.ID {
		t.Fatalf("expected newest first")
	}
	for _, comment := range comments {
		if comment.Rating.ID == silent.ID {
			t.Fatalf("ratings without comment must be excluded")
		}
	}
	if !comments[0].Liked || comments[0].LikesCount != 1 {
		t.Fatalf("expected viewer like on newest comment, got %+v", comments[0])
	}
	if comments[1].Reactions[ReactionFire] != 2 || comments[1].Reactions[ReactionLaugh] != 1 {
		t.Fatalf("unexpected reaction counts %+v", comments[1].Reactions)
	}
	if len(comments[1].MyReactions) != 2 {
		t.Fatalf("expected two viewer reactions, got %v", comments[1].MyReactions)
	}

	anonymous, err := fixture.service.ListComments(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if anonymous[0].Liked || len(anonymous[1].MyReactions) != 0 {
		t.Fatalf("expected no viewer flags without fingerprint")
	}
}
