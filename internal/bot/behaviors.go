// ABOUTME: Periodic wander and idle-chat behaviors for an active bot.
// ABOUTME: Timers exist only while Active and die with the session's generation.

package bot

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/2389/botherd/internal/session"
)

// tunables are the behavior and connection timings. Production uses the
// defaults; tests compress them to keep runs fast.
type tunables struct {
	dialTimeout time.Duration

	wanderMin  time.Duration // lower bound between wander fires
	wanderMax  time.Duration // upper bound between wander fires
	wanderWalk time.Duration // how long forward motion is held
	wanderFlag time.Duration // how long the wandering flag stays set

	chatMin    time.Duration // lower bound between chat fires
	chatMax    time.Duration // upper bound between chat fires
	chatChance float64       // probability a fire actually says something
}

func defaultTunables() tunables {
	return tunables{
		dialTimeout: 10 * time.Second,
		wanderMin:   15 * time.Second,
		wanderMax:   25 * time.Second,
		wanderWalk:  2 * time.Second,
		wanderFlag:  8 * time.Second,
		chatMin:     30 * time.Second,
		chatMax:     90 * time.Second,
		chatChance:  0.3,
	}
}

// wanderDirections are the 8 compass and diagonal headings, as unit vectors
// on the horizontal plane.
var wanderDirections = []session.Vec3{
	{X: 0, Z: -1},
	{X: 0.707, Z: -0.707},
	{X: 1, Z: 0},
	{X: 0.707, Z: 0.707},
	{X: 0, Z: 1},
	{X: -0.707, Z: 0.707},
	{X: -1, Z: 0},
	{X: -0.707, Z: -0.707},
}

// casualLines is the fixed idle-chat repertoire.
var casualLines = []string{
	"hey",
	"anyone around?",
	"nice build over there",
	"this biome is huge",
	"found any diamonds yet?",
	"brb exploring",
	"what a view",
	"lag spike anyone?",
	"gg",
	"time to dig",
}

// startBehaviorsLocked arms the behavior timers for a freshly spawned
// session. Caller holds the lock and has just entered Active.
func (i *Instance) startBehaviorsLocked() {
	if i.cfg.WanderEnabled {
		i.scheduleWanderLocked()
	}
	if i.cfg.ChatEnabled {
		i.scheduleChatLocked()
	}
}

// cancelBehaviorsLocked stops every behavior timer. Together with the
// generation bump on the transition out of Active, this guarantees no timer
// ever fires against a torn-down session.
func (i *Instance) cancelBehaviorsLocked() {
	for _, t := range []**time.Timer{&i.wanderTimer, &i.wanderHaltTimer, &i.wanderClearTimer, &i.chatTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (i *Instance) scheduleWanderLocked() {
	gen := i.gen
	i.wanderTimer = time.AfterFunc(uniformDuration(i.tun.wanderMin, i.tun.wanderMax), func() {
		i.wanderFire(gen)
	})
}

// wanderFire picks a heading and distance, walks forward briefly, and marks
// the instance as wandering. Movement errors are swallowed: they are
// expected whenever the bot is against a wall or mid-knockback.
func (i *Instance) wanderFire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.state != StateActive {
		i.mu.Unlock()
		return
	}

	dir := wanderDirections[rand.IntN(len(wanderDirections))]
	dist := 3 + rand.Float64()*7
	target := session.Vec3{X: dir.X * dist, Y: 0, Z: dir.Z * dist}

	i.wandering = true
	i.emitStatusLocked()

	i.wanderHaltTimer = time.AfterFunc(i.tun.wanderWalk, func() { i.wanderHalt(gen) })
	i.wanderClearTimer = time.AfterFunc(i.tun.wanderFlag, func() { i.wanderClear(gen) })
	i.scheduleWanderLocked()

	sess := i.sess
	i.mu.Unlock()

	_ = sess.LookAt(target)
	_ = sess.SetForwardMotion(true)
}

// wanderHalt stops forward motion after the walk window.
func (i *Instance) wanderHalt(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.state != StateActive {
		i.mu.Unlock()
		return
	}
	sess := i.sess
	i.mu.Unlock()

	_ = sess.SetForwardMotion(false)
}

// wanderClear drops the wandering flag once the full wander window elapses.
func (i *Instance) wanderClear(gen uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if gen != i.gen || i.state != StateActive {
		return
	}
	i.wandering = false
	i.emitStatusLocked()
}

func (i *Instance) scheduleChatLocked() {
	gen := i.gen
	i.chatTimer = time.AfterFunc(uniformDuration(i.tun.chatMin, i.tun.chatMax), func() {
		i.chatFire(gen)
	})
}

// chatFire occasionally says one line from the casual repertoire.
func (i *Instance) chatFire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || i.state != StateActive {
		i.mu.Unlock()
		return
	}
	i.scheduleChatLocked()

	if rand.Float64() >= i.tun.chatChance {
		i.mu.Unlock()
		return
	}

	line := casualLines[rand.IntN(len(casualLines))]
	i.logLocked(LevelInfo, fmt.Sprintf("chat: %q", line))
	sess := i.sess
	i.mu.Unlock()

	if err := sess.Chat(line); err != nil {
		i.logger.Debug("chat send failed", "error", err)
	}
}

// uniformDuration draws from Uniform(min, max).
func uniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}
