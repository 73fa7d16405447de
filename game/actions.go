package game

import (
	"log/slog"
	"time"

	"xiwangsha-server/card"
	"xiwangsha-server/gameerrors"
)

func (s *Session) handleJoin(a Action) error {
	next, err := s.engine.Join(s.state, a.PlayerID, a.Name, a.UserID)
	if err != nil {
		return err
	}
	s.commit(next)
	s.hadMembers = true
	if a.Send != nil {
		s.bcast.Subscribe(s.ID, a.PlayerID, a.Send)
	}
	s.publish("player_joined", map[string]any{
		"player_id":   a.PlayerID,
		"player_name": a.Name,
	})
	slog.Info("player joined", "tag", "session", "room", s.ID, "player", a.Name, "benched", next.Players[a.PlayerID].Benched)
	return nil
}

func (s *Session) handleLeave(a Action) error {
	p, ok := s.state.Players[a.PlayerID]
	if !ok {
		return gameerrors.ErrPlayerNotFound
	}
	name := p.Name
	pending := s.state.Pending

	next, err := s.engine.Leave(s.state, a.PlayerID)
	if err != nil {
		return err
	}
	finished := s.commit(next)
	if pending != nil && (pending.TargetID == a.PlayerID || pending.AttackerID == a.PlayerID) {
		s.publish("attack_resolved", map[string]any{
			"target_id": pending.TargetID,
			"dodged":    false,
			"implicit":  true,
		})
	}
	s.publish("player_left", map[string]any{
		"player_id":    a.PlayerID,
		"player_name":  name,
		"disconnected": a.Disconnected,
	})
	s.bcast.Unsubscribe(s.ID, a.PlayerID)
	slog.Info("player left", "tag", "session", "room", s.ID, "player", name, "disconnected", a.Disconnected)

	if finished {
		s.finishGame()
	}
	if len(s.state.Players) == 0 && s.hadMembers {
		s.closeRoom()
	}
	return nil
}

func (s *Session) handleStart(a Action) error {
	next, err := s.engine.Start(s.state, a.PlayerID)
	if err != nil {
		return err
	}
	s.startedAt = time.Now()
	s.commit(next)
	s.publish("game_started", map[string]any{
		"current_turn": next.CurrentTurn,
	})
	slog.Info("game started", "tag", "session", "room", s.ID, "players", len(next.Players))
	return nil
}

// handleUseCard plays a card, or answers the pending attack when the sender
// is its target.
func (s *Session) handleUseCard(a Action) error {
	if pa := s.state.Pending; pa != nil && pa.TargetID == a.PlayerID {
		return s.respond(a)
	}
	next, err := s.engine.Play(s.state, a.PlayerID, a.CardIndex, a.TargetID)
	if err != nil {
		return err
	}
	finished := s.commit(next)
	fields := map[string]any{
		"player_id": a.PlayerID,
		"target_id": a.TargetID,
	}
	if n := len(next.Log); n > 0 {
		fields["card"] = next.Log[n-1].Card
	}
	s.publish("card_used", fields)
	if pa := next.Pending; pa != nil {
		s.bcast.Direct(s.ID, pa.TargetID, "attack_pending", map[string]any{
			"attacker_id": pa.AttackerID,
			"card":        BuildCardView(pa.Card),
			"undodgeable": pa.Card.Has(card.TagUndodgeable),
			"timeout_sec": s.Config.ResponseTimeoutSec,
		})
		s.startResponseTimer()
	}
	if finished {
		s.finishGame()
	}
	return nil
}

func (s *Session) respond(a Action) error {
	next, err := s.engine.Respond(s.state, a.PlayerID, a.CardIndex)
	if err != nil {
		return err
	}
	s.commit(next)
	s.publish("attack_resolved", map[string]any{
		"target_id": a.PlayerID,
		"dodged":    true,
	})
	return nil
}

func (s *Session) handleResolveAttack(a Action) error {
	pending := s.state.Pending
	next, err := s.engine.Decline(s.state, a.PlayerID)
	if err != nil {
		return err
	}
	finished := s.commit(next)
	s.publishHit(pending.TargetID, false)
	if finished {
		s.finishGame()
	}
	return nil
}

func (s *Session) handleResponseTimeout(seq int) {
	if seq != s.responseSeq || s.state.Pending == nil {
		return
	}
	target := s.state.Pending.TargetID
	next, err := s.engine.ForceDecline(s.state)
	if err != nil {
		return
	}
	finished := s.commit(next)
	s.publishHit(target, true)
	slog.Info("response window expired", "tag", "session", "room", s.ID, "target", target)
	if finished {
		s.finishGame()
	}
}

func (s *Session) publishHit(targetID string, timedOut bool) {
	fields := map[string]any{
		"target_id": targetID,
		"dodged":    false,
		"timed_out": timedOut,
	}
	// Elimination and game_over entries may follow the hit.
	for i := len(s.state.Log) - 1; i >= 0; i-- {
		if s.state.Log[i].Type == "attack_resolved" {
			fields["damage"] = s.state.Log[i].Amount
			break
		}
	}
	s.publish("attack_resolved", fields)
}

func (s *Session) handleEndTurn(a Action) error {
	next, err := s.engine.EndTurn(s.state, a.PlayerID)
	if err != nil {
		return err
	}
	s.commit(next)
	nextName := ""
	if p := next.Players[next.CurrentTurn]; p != nil {
		nextName = p.Name
	}
	s.publish("turn_ended", map[string]any{
		"next_player":      next.CurrentTurn,
		"next_player_name": nextName,
	})
	return nil
}

func (s *Session) handleSnapshot(a Action) {
	if a.Send == nil {
		return
	}
	sendEvent(a.Send, "game_state", map[string]any{
		"game_state": BuildGameState(s.ID, s.state),
	})
}

func (s *Session) handleClose() {
	if s.closed {
		return
	}
	s.closeRoom()
}

// closeRoom tells remaining members the room is gone and stops the session.
func (s *Session) closeRoom() {
	s.bcast.Publish(s.ID, "room_closed", map[string]any{"room_id": s.ID})
	s.bcast.Drop(s.ID)
	s.closed = true
	slog.Info("room closed", "tag", "session", "room", s.ID)
	if s.OnEmpty != nil {
		s.OnEmpty(s.ID)
	}
}

// publish sends event to the whole room with the current game_state attached.
func (s *Session) publish(event string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["game_state"] = BuildGameState(s.ID, s.state)
	s.bcast.Publish(s.ID, event, fields)
}
