package session

// Participant is one remote call participant with its media flags.
type Participant struct {
	UID     int64 `json:"uid"`
	VideoOn bool  `json:"video_on"`
	AudioOn bool  `json:"audio_on"`
}

// Registry tracks remote participants by uid. It is owned by the session
// loop, so it carries no locking of its own; Snapshot returns copies.
//
// Join is idempotent and media updates for unknown uids are dropped: the
// transport gives no ordering guarantee between a join event and a media
// state event for the same uid.
type Registry struct {
	order   []int64
	entries map[int64]*Participant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]*Participant)}
}

// Joined adds a participant; duplicate joins are benign.
func (r *Registry) Joined(uid int64) {
	if _, ok := r.entries[uid]; ok {
		return
	}
	r.entries[uid] = &Participant{UID: uid, VideoOn: true, AudioOn: true}
	r.order = append(r.order, uid)
}

// Left removes a participant; removing an unknown uid is a no-op.
func (r *Registry) Left(uid int64) {
	if _, ok := r.entries[uid]; !ok {
		return
	}
	delete(r.entries, uid)
	for i, id := range r.order {
		if id == uid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// SetVideo updates a participant's camera flag; unknown uids are ignored.
func (r *Registry) SetVideo(uid int64, enabled bool) {
	if p, ok := r.entries[uid]; ok {
		p.VideoOn = enabled
	}
}

// SetAudio updates a participant's microphone flag; unknown uids are ignored.
func (r *Registry) SetAudio(uid int64, enabled bool) {
	if p, ok := r.entries[uid]; ok {
		p.AudioOn = enabled
	}
}

// Len returns the number of remote participants.
func (r *Registry) Len() int { return len(r.entries) }

// Snapshot returns participants in join order.
func (r *Registry) Snapshot() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, uid := range r.order {
		if p, ok := r.entries[uid]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Reset drops all participants.
func (r *Registry) Reset() {
	r.order = nil
	r.entries = make(map[int64]*Participant)
}
