package rules

import (
	"errors"
	"testing"

	"xiwangsha-server/card"
	"xiwangsha-server/gameerrors"
)

func testEngine() *Engine {
	return NewEngine(card.Default(), DefaultSettings(), 1)
}

func mustCard(t *testing.T, id string) card.Card {
	t.Helper()
	c, ok := card.Default().Get(id)
	if !ok {
		t.Fatalf("unknown card %q", id)
	}
	return c
}

func hand(t *testing.T, ids ...string) []card.Card {
	t.Helper()
	out := make([]card.Card, 0, len(ids))
	for _, id := range ids {
		out = append(out, mustCard(t, id))
	}
	return out
}

// playingState returns a started two-player game where p1 holds the turn.
func playingState(t *testing.T, h1, h2 []card.Card) State {
	t.Helper()
	s := NewState()
	s.Phase = PhasePlaying
	s.Players["p1"] = &Player{ID: "p1", Name: "Alice", Vitality: 4, MaxVitality: 4, Hand: h1}
	s.Players["p2"] = &Player{ID: "p2", Name: "Bob", Vitality: 4, MaxVitality: 4, Hand: h2}
	s.Order = []string{"p1", "p2"}
	s.CurrentTurn = "p1"
	return s
}

func expectViolation(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, gameerrors.ErrRuleViolation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
}

func TestJoinAndStart(t *testing.T) {
	e := testEngine()
	s := NewState()

	s, err := e.Join(s, "p1", "Alice", "")
	if err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if _, err := e.Start(s, "p1"); err == nil {
		t.Fatal("expected start with one player to fail")
	} else {
		expectViolation(t, err)
	}

	s, err = e.Join(s, "p2", "Bob", "")
	if err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if _, err := e.Start(s, "ghost"); !errors.Is(err, gameerrors.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound for non-member start, got %v", err)
	}

	s, err = e.Start(s, "p2")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Phase != PhasePlaying {
		t.Errorf("expected phase playing, got %s", s.Phase)
	}
	if s.CurrentTurn != "p1" {
		t.Errorf("expected first joined player to hold the turn, got %s", s.CurrentTurn)
	}
	if got := len(s.Players["p1"].Hand); got != 6 {
		t.Errorf("expected first player to hold 4+2 cards, got %d", got)
	}
	if got := len(s.Players["p2"].Hand); got != 4 {
		t.Errorf("expected second player to hold 4 cards, got %d", got)
	}
	if len(s.Deck) != 8 {
		t.Errorf("expected 8 cards left in deck, got %d", len(s.Deck))
	}

	if _, err := e.Start(s, "p1"); err == nil {
		t.Fatal("expected second start to fail")
	} else {
		expectViolation(t, err)
	}
}

func TestJoinCapacityAndDuplicates(t *testing.T) {
	e := testEngine()
	s := NewState()
	s, _ = e.Join(s, "p1", "Alice", "")
	s, _ = e.Join(s, "p2", "Bob", "")

	if _, err := e.Join(s, "p3", "Carol", ""); !errors.Is(err, gameerrors.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := e.Join(s, "p1", "Alice", ""); err == nil {
		t.Fatal("expected duplicate join to fail")
	}
	if len(s.Players) != 2 {
		t.Errorf("expected 2 players, got %d", len(s.Players))
	}
}

func TestLateJoinPolicies(t *testing.T) {
	base := playingState(t, nil, nil)

	e := testEngine()
	e.Settings.MaxPlayers = 3
	e.Settings.LateJoin = LateJoinReject
	if _, err := e.Join(base, "p3", "Carol", ""); err == nil {
		t.Fatal("expected reject policy to refuse late join")
	}

	e.Settings.LateJoin = LateJoinBench
	s, err := e.Join(base, "p3", "Carol", "")
	if err != nil {
		t.Fatalf("bench join: %v", err)
	}
	if !s.Players["p3"].Benched {
		t.Error("expected late joiner to be benched")
	}
	if len(s.ActivePlayers()) != 2 {
		t.Errorf("expected benched player outside rotation, active=%v", s.ActivePlayers())
	}

	e.Settings.LateJoin = LateJoinRotate
	s = base.Clone()
	s.Deck = hand(t, card.Rest, card.Rest, card.Exercise, card.Exercise)
	s, err = e.Join(s, "p3", "Carol", "")
	if err != nil {
		t.Fatalf("rotate join: %v", err)
	}
	if s.Players["p3"].Benched || len(s.Players["p3"].Hand) != 4 {
		t.Errorf("expected rotated joiner to be active with 4 cards, got benched=%v hand=%d",
			s.Players["p3"].Benched, len(s.Players["p3"].Hand))
	}
	if s.nextActiveAfter("p2") != "p3" {
		t.Errorf("expected p3 after p2 in rotation, got %s", s.nextActiveAfter("p2"))
	}
}

func TestBenchedPlayerCannotBeTargeted(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.Exercise), nil)
	s.Players["p3"] = &Player{ID: "p3", Name: "Carol", Vitality: 4, MaxVitality: 4, Benched: true}
	s.Order = append(s.Order, "p3")

	_, err := e.Play(s, "p1", 0, "p3")
	expectViolation(t, err)
	_, err = e.Play(s, "p1", 1, "p3")
	expectViolation(t, err)
}

func TestAttackDeclined(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), hand(t, card.Rest))

	s, err := e.Play(s, "p1", 0, "p2")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if !s.WaitingForResponse() || s.Pending.TargetID != "p2" {
		t.Fatal("expected pending attack on p2")
	}
	if s.CurrentTurn != "p1" {
		t.Errorf("playing a card must not advance the turn, got %s", s.CurrentTurn)
	}
	if s.UsageOf("p1", card.TestPaper) != 1 {
		t.Errorf("expected ledger count 1, got %d", s.UsageOf("p1", card.TestPaper))
	}

	s, err = e.Decline(s, "p2")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if s.Players["p2"].Vitality != 3 {
		t.Errorf("expected p2 vitality 3, got %d", s.Players["p2"].Vitality)
	}
	if s.WaitingForResponse() {
		t.Error("expected response window closed")
	}
	if last := s.Log[len(s.Log)-1]; last.Type != "attack_resolved" {
		t.Errorf("expected attack_resolved log entry, got %s", last.Type)
	}
}

func TestPerTurnCapRejectsSecondUse(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.TestPaper), nil)

	s, _ = e.Play(s, "p1", 0, "p2")
	s, _ = e.Decline(s, "p2")

	before := s
	after, err := e.Play(s, "p1", 0, "p2")
	expectViolation(t, err)
	if after.UsageOf("p1", card.TestPaper) != 1 {
		t.Errorf("expected ledger unchanged at 1, got %d", after.UsageOf("p1", card.TestPaper))
	}
	if len(before.Players["p1"].Hand) != 1 || len(after.Players["p1"].Hand) != 1 {
		t.Error("expected hand unchanged after rejected play")
	}
}

func TestDodgeAvoidsDamage(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), hand(t, card.Rest, card.Dismiss))

	s, _ = e.Play(s, "p1", 0, "p2")
	discardBefore := len(s.Discard)
	s, err := e.Respond(s, "p2", 1)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if s.Players["p2"].Vitality != 4 {
		t.Errorf("expected vitality unchanged, got %d", s.Players["p2"].Vitality)
	}
	if len(s.Players["p2"].Hand) != 1 || s.Players["p2"].Hand[0].ID != card.Rest {
		t.Error("expected dismiss removed from hand")
	}
	if len(s.Discard) != discardBefore+1 {
		t.Error("expected dismiss in discard pile")
	}
	if s.WaitingForResponse() {
		t.Error("expected response window closed")
	}
}

func TestUndodgeableNeedsCounter(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.LinearAlgebra), hand(t, card.Dismiss, card.TestPaper))

	s, err := e.Play(s, "p1", 0, "p2")
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	_, err = e.Respond(s, "p2", 0)
	expectViolation(t, err)

	s, err = e.Respond(s, "p2", 1)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if s.Players["p2"].Vitality != 4 {
		t.Errorf("expected counter to prevent damage, got vitality %d", s.Players["p2"].Vitality)
	}
	if s.UsageOf("p2", card.TestPaper) != 1 {
		t.Error("expected counter play recorded in responder's ledger")
	}
}

func TestCounterDoesNotAnswerDodgeableAttack(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), hand(t, card.TestPaper))
	s, _ = e.Play(s, "p1", 0, "p2")

	_, err := e.Respond(s, "p2", 0)
	expectViolation(t, err)
}

func TestOnlyTargetMayRespond(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.Dismiss), hand(t, card.Dismiss))
	s, _ = e.Play(s, "p1", 0, "p2")

	_, err := e.Respond(s, "p1", 0)
	expectViolation(t, err)
	_, err = e.Decline(s, "p1")
	expectViolation(t, err)
	_, err = e.Decline(s, "ghost")
	if !errors.Is(err, gameerrors.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestActionsBlockedWhileAwaitingResponse(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.Exercise), nil)
	s, _ = e.Play(s, "p1", 0, "p2")

	_, err := e.Play(s, "p1", 0, "")
	expectViolation(t, err)
	_, err = e.EndTurn(s, "p1")
	expectViolation(t, err)
}

func TestPlayValidation(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.Dismiss), hand(t, card.Exercise))

	cases := []struct {
		name   string
		player string
		index  int
		target string
	}{
		{"out of turn", "p2", 0, ""},
		{"index too large", "p1", 5, "p2"},
		{"negative index", "p1", -1, "p2"},
		{"dodge card outside a window", "p1", 1, "p2"},
		{"attack without target", "p1", 0, ""},
		{"attack on self", "p1", 0, "p1"},
		{"attack on stranger", "p1", 0, "nobody"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			after, err := e.Play(s, tc.player, tc.index, tc.target)
			expectViolation(t, err)
			if after.Pending != nil || len(after.Players["p1"].Hand) != 2 {
				t.Error("expected state unchanged")
			}
		})
	}
}

func TestPlayDoesNotMutateInput(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), nil)

	if _, err := e.Play(s, "p1", 0, "p2"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(s.Players["p1"].Hand) != 1 || s.Pending != nil || s.UsageOf("p1", card.TestPaper) != 0 {
		t.Error("expected original state untouched")
	}
}

func TestEndTurnResetsLedgerAndDraws(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), nil)
	s.Deck = hand(t, card.Rest, card.Meditation, card.TestPaper, card.Exercise)
	s, _ = e.Play(s, "p1", 0, "p2")
	s, _ = e.Decline(s, "p2")

	s, err := e.EndTurn(s, "p1")
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if s.CurrentTurn != "p2" {
		t.Errorf("expected p2 to hold the turn, got %s", s.CurrentTurn)
	}
	if len(s.Usage) != 0 {
		t.Errorf("expected empty ledger, got %v", s.Usage)
	}
	if len(s.Players["p2"].Hand) != 2 {
		t.Errorf("expected p2 to draw 2 cards, got %d", len(s.Players["p2"].Hand))
	}

	_, err = e.EndTurn(s, "p1")
	expectViolation(t, err)

	s, _ = e.EndTurn(s, "p2")
	if s.CurrentTurn != "p1" {
		t.Fatalf("expected rotation to wrap to p1, got %s", s.CurrentTurn)
	}

	// The capped card is playable again on p1's next turn.
	if s.Players["p1"].Hand[0].ID != card.TestPaper {
		t.Fatalf("expected p1 to draw %s, got %v", card.TestPaper, s.Players["p1"].Hand)
	}
	s, err = e.Play(s, "p1", 0, "p2")
	if err != nil {
		t.Fatalf("replaying %s on the next turn: %v", card.TestPaper, err)
	}
	if s.UsageOf("p1", card.TestPaper) != 1 {
		t.Errorf("expected usage 1, got %d", s.UsageOf("p1", card.TestPaper))
	}
}

func TestEndTurnSkipsEliminated(t *testing.T) {
	e := testEngine()
	e.Settings.MaxPlayers = 3
	s := playingState(t, nil, nil)
	s.Players["p3"] = &Player{ID: "p3", Name: "Carol", Vitality: 4, MaxVitality: 4}
	s.Order = append(s.Order, "p3")
	s.Players["p2"].Eliminated = true
	s.Players["p2"].Vitality = 0

	s, err := e.EndTurn(s, "p1")
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if s.CurrentTurn != "p3" {
		t.Errorf("expected eliminated p2 to be skipped, got %s", s.CurrentTurn)
	}
}

func TestEliminationEndsGame(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), nil)
	s.Players["p2"].Vitality = 1

	s, _ = e.Play(s, "p1", 0, "p2")
	s, err := e.Decline(s, "p2")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if !s.Players["p2"].Eliminated {
		t.Error("expected p2 eliminated")
	}
	if s.Phase != PhaseFinished {
		t.Errorf("expected finished, got %s", s.Phase)
	}
	if s.Winner != "p1" {
		t.Errorf("expected p1 to win, got %q", s.Winner)
	}
	if _, ok := s.Players["p2"]; !ok {
		t.Error("eliminated player should stay listed")
	}
	_, err = e.EndTurn(s, "p1")
	expectViolation(t, err)
}

func TestLeaveAsTargetDeclines(t *testing.T) {
	e := testEngine()
	e.Settings.MaxPlayers = 3
	s := playingState(t, hand(t, card.TestPaper), hand(t, card.Dismiss))
	s.Players["p3"] = &Player{ID: "p3", Name: "Carol", Vitality: 4, MaxVitality: 4}
	s.Order = append(s.Order, "p3")

	s, _ = e.Play(s, "p1", 0, "p2")
	s, err := e.Leave(s, "p2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if s.WaitingForResponse() {
		t.Error("expected window closed after target left")
	}
	if _, ok := s.Players["p2"]; ok {
		t.Error("expected p2 removed")
	}
	if s.Phase != PhasePlaying || s.CurrentTurn != "p1" {
		t.Errorf("expected game to continue with p1, got %s/%s", s.Phase, s.CurrentTurn)
	}
	var declined bool
	for _, l := range s.Log {
		if l.Type == "attack_resolved" && l.Target == "Bob" && l.Amount == 1 {
			declined = true
		}
	}
	if !declined {
		t.Error("expected implicit decline in log")
	}
}

func TestLeaveLastOpponentFinishes(t *testing.T) {
	e := testEngine()
	s := playingState(t, nil, nil)

	s, err := e.Leave(s, "p2")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if s.Phase != PhaseFinished || s.Winner != "p1" {
		t.Errorf("expected p1 to win by default, got %s/%q", s.Phase, s.Winner)
	}
	if _, err := e.Leave(s, "p2"); !errors.Is(err, gameerrors.ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound on second leave, got %v", err)
	}
}

func TestLeaveOnTurnAdvances(t *testing.T) {
	e := testEngine()
	e.Settings.MaxPlayers = 3
	s := playingState(t, nil, nil)
	s.Players["p3"] = &Player{ID: "p3", Name: "Carol", Vitality: 4, MaxVitality: 4}
	s.Order = append(s.Order, "p3")

	s, err := e.Leave(s, "p1")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if s.CurrentTurn != "p2" {
		t.Errorf("expected turn to pass to p2, got %s", s.CurrentTurn)
	}
}

func TestSettlementCountsTestPapers(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper, card.Settlement), nil)

	s, _ = e.Play(s, "p1", 0, "p2")
	s, _ = e.Decline(s, "p2")
	if got := Damage(s, &PendingAttack{Card: mustCard(t, card.Settlement), AttackerID: "p1"}); got != 1 {
		t.Fatalf("expected settlement damage 1, got %d", got)
	}
	s, _ = e.Play(s, "p1", 0, "p2")
	s, _ = e.Decline(s, "p2")
	if s.Players["p2"].Vitality != 2 {
		t.Errorf("expected p2 at 2 vitality, got %d", s.Players["p2"].Vitality)
	}
}

func TestTaishanDamage(t *testing.T) {
	s := playingState(t, nil, nil)
	pa := &PendingAttack{Card: mustCard(t, card.Taishan), AttackerID: "p1", TargetID: "p2"}

	if got := Damage(s, pa); got != 2 {
		t.Errorf("expected half of 4 = 2, got %d", got)
	}
	s.Players["p1"].Vitality = 1
	if got := Damage(s, pa); got != 1 {
		t.Errorf("expected minimum damage 1, got %d", got)
	}
}

func TestHealCapsAtMax(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.Exercise, card.Rest), nil)
	s.Players["p1"].Vitality = 3

	s, err := e.Play(s, "p1", 0, "")
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if s.Players["p1"].Vitality != 4 {
		t.Errorf("expected 4, got %d", s.Players["p1"].Vitality)
	}
	s, _ = e.Play(s, "p1", 0, "")
	if s.Players["p1"].Vitality != 4 {
		t.Errorf("expected heal capped at 4, got %d", s.Players["p1"].Vitality)
	}
	if s.WaitingForResponse() {
		t.Error("heal must not open a response window")
	}
}

func TestScratchDiscardsFirstCard(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.Scratch), hand(t, card.Dismiss, card.Rest))

	s, err := e.Play(s, "p1", 0, "p2")
	if err != nil {
		t.Fatalf("scratch: %v", err)
	}
	h := s.Players["p2"].Hand
	if len(h) != 1 || h[0].ID != card.Rest {
		t.Errorf("expected only rest left in p2's hand, got %v", h)
	}
}

func TestDrawReshufflesDiscard(t *testing.T) {
	e := testEngine()
	s := playingState(t, nil, nil)
	s.Deck = nil
	s.Discard = hand(t, card.Rest, card.Exercise, card.Meditation)

	s, err := e.EndTurn(s, "p1")
	if err != nil {
		t.Fatalf("end turn: %v", err)
	}
	if len(s.Players["p2"].Hand) != 2 {
		t.Errorf("expected 2 cards drawn from reshuffled pile, got %d", len(s.Players["p2"].Hand))
	}
	if len(s.Deck) != 1 || len(s.Discard) != 0 {
		t.Errorf("expected deck=1 discard=0, got %d/%d", len(s.Deck), len(s.Discard))
	}
}

func TestForceDecline(t *testing.T) {
	e := testEngine()
	s := playingState(t, hand(t, card.TestPaper), nil)

	_, err := e.ForceDecline(s)
	expectViolation(t, err)

	s, _ = e.Play(s, "p1", 0, "p2")
	s, err = e.ForceDecline(s)
	if err != nil {
		t.Fatalf("force decline: %v", err)
	}
	if s.Players["p2"].Vitality != 3 {
		t.Errorf("expected timeout to land the attack, got %d", s.Players["p2"].Vitality)
	}
}

func TestParseLateJoin(t *testing.T) {
	if ParseLateJoin("reject") != LateJoinReject || ParseLateJoin("rotate") != LateJoinRotate {
		t.Error("expected known policies to parse")
	}
	if ParseLateJoin("") != LateJoinBench || ParseLateJoin("bogus") != LateJoinBench {
		t.Error("expected bench fallback")
	}
}
