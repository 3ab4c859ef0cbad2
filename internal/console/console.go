// Package console provides the interactive command prompt for driving the
// player from a terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/lhoume/jukebox/internal/playback"
	"github.com/lhoume/jukebox/internal/prefetch"
	"github.com/lhoume/jukebox/internal/queue"
	"github.com/lhoume/jukebox/internal/tags"
)

const defaultRequester = "console"

// ErrQuit signals a clean exit request from the prompt.
var ErrQuit = errors.New("console: quit")

// Console is the interactive shell bound to one orchestrator.
type Console struct {
	orch     *playback.Orchestrator
	queue    *queue.Queue
	prefetch *prefetch.Scheduler
	log      *logrus.Entry

	rl  *readline.Instance
	out io.Writer
}

// New creates the console. Close releases the terminal.
func New(orch *playback.Orchestrator, q *queue.Queue, pf *prefetch.Scheduler, log *logrus.Entry) (*Console, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("add"),
		readline.PcItem("queue"),
		readline.PcItem("np"),
		readline.PcItem("remove"),
		readline.PcItem("move"),
		readline.PcItem("skip"),
		readline.PcItem("pause"),
		readline.PcItem("resume"),
		readline.PcItem("seek"),
		readline.PcItem("repeat",
			readline.PcItem("none"), readline.PcItem("one"), readline.PcItem("all")),
		readline.PcItem("shuffle",
			readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("prefetch"),
		readline.PcItem("af"),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "jukebox> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}

	return &Console{
		orch:     orch,
		queue:    q,
		prefetch: pf,
		log:      log,
		rl:       rl,
		out:      rl.Stdout(),
	}, nil
}

// Close releases the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run reads commands until quit or EOF. Playback events are echoed above
// the prompt while it blocks.
func (c *Console) Run() error {
	sub := c.orch.Subscribe()
	go c.echoEvents(sub)

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := c.dispatch(line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			c.log.WithError(err).WithField("line", line).Debug("command failed")
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// echoEvents prints playback notifications above the prompt.
func (c *Console) echoEvents(sub *playback.Subscription) {
	for {
		select {
		case ev := <-sub.SongChanged:
			if ev.Current != nil {
				fmt.Fprintf(c.out, "\r♪ now playing: %s\n", describeItem(*ev.Current))
			} else if ev.Previous != nil {
				fmt.Fprintf(c.out, "\r♪ finished: %s\n", describeItem(*ev.Previous))
			}
		case ev := <-sub.Errors:
			fmt.Fprintf(c.out, "\r✗ %s failed for %s: %v\n", ev.Op, ev.Content, ev.Err)
		case <-sub.Done:
			return
		}
	}
}

func (c *Console) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "add":
		return c.cmdAdd(args)
	case "queue", "q", "ls":
		return c.cmdQueue()
	case "np", "status":
		return c.cmdNowPlaying()
	case "remove", "rm":
		return c.cmdRemove(args)
	case "move", "mv":
		return c.cmdMove(args)
	case "skip", "next":
		return c.orch.Skip()
	case "pause":
		return c.orch.Pause()
	case "resume", "play":
		return c.orch.Resume()
	case "seek":
		return c.cmdSeek(args)
	case "repeat":
		return c.cmdRepeat(args)
	case "shuffle":
		return c.cmdShuffle(args)
	case "prefetch":
		return c.cmdPrefetch(args)
	case "af":
		return c.cmdFilters(args)
	case "clear":
		c.orch.ClearQueue()
		fmt.Fprintln(c.out, "queue cleared")
		return nil
	case "help", "?":
		c.printHelp()
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// cmdAdd enqueues a url, search query, or local file.
//
//	add <url or search terms>
//	add -r <requester> <url or search terms>
func (c *Console) cmdAdd(args []string) error {
	requester := defaultRequester
	if len(args) >= 2 && args[0] == "-r" {
		requester = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		return errors.New("usage: add [-r requester] <url, search terms, or file path>")
	}
	content := strings.Join(args, " ")

	item := queue.Item{
		Kind:          queue.KindURL,
		Content:       content,
		RequesterID:   requester,
		OriginChannel: "console",
	}
	if info, err := os.Stat(content); err == nil && !info.IsDir() {
		probed := tags.Probe(content)
		item.Kind = queue.KindFile
		item.Title = probed.Title
		item.Artist = probed.Artist
	}

	stored, ok := c.orch.Enqueue(item)
	if !ok {
		return fmt.Errorf("already queued: %s", content)
	}

	marker := ""
	if stored.Priority {
		marker = " [priority]"
	}
	fmt.Fprintf(c.out, "queued%s: %s\n", marker, describeItem(stored))
	c.prefetch.Poke()
	return nil
}

func (c *Console) cmdQueue() error {
	items := c.queue.Snapshot()
	if len(items) == 0 {
		fmt.Fprintln(c.out, "queue is empty")
		return nil
	}
	for i, it := range items {
		marker := " "
		if it.Priority {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%2d %s %s  [%s]\n", i+1, marker, describeItem(it), describeStatus(it))
	}
	return nil
}

func (c *Console) cmdNowPlaying() error {
	st := c.orch.Status()
	fmt.Fprintf(c.out, "phase: %s  repeat: %s  shuffle: %v  played: %d\n",
		st.Phase, st.Repeat, st.Shuffle, st.SongsPlayed)
	if st.Current == nil {
		return nil
	}
	item := st.Current.Item
	fmt.Fprintf(c.out, "current: %s\n", describeItem(item))
	if item.Duration > 0 {
		fmt.Fprintf(c.out, "position: %s / %s\n", formatDuration(st.Elapsed), formatDuration(item.Duration))
	} else {
		fmt.Fprintf(c.out, "position: %s\n", formatDuration(st.Elapsed))
	}
	fmt.Fprintf(c.out, "started: %s\n", humanize.Time(st.Current.StartTime))
	return nil
}

func (c *Console) cmdRemove(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <position>")
	}
	pos, err := strconv.Atoi(args[0])
	if err != nil || pos < 1 {
		return fmt.Errorf("bad position %q", args[0])
	}
	removed := c.orch.RemoveAt(pos - 1)
	if removed == nil {
		return fmt.Errorf("no item at position %d", pos)
	}
	fmt.Fprintf(c.out, "removed: %s\n", describeItem(*removed))
	return nil
}

func (c *Console) cmdMove(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: move <from> <to>")
	}
	from, err1 := strconv.Atoi(args[0])
	to, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || from < 1 || to < 1 {
		return errors.New("positions must be numbers starting at 1")
	}
	if !c.orch.Move(from-1, to-1) {
		return errors.New("move rejected (out of range, or it would mix priority and normal items)")
	}
	fmt.Fprintf(c.out, "moved %s item to position %d\n", humanize.Ordinal(from), to)
	return nil
}

func (c *Console) cmdSeek(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <seconds or mm:ss>")
	}
	target, err := parseTimestamp(args[0])
	if err != nil {
		return err
	}
	effective, err := c.orch.Seek(target)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "position: %s\n", formatDuration(effective))
	return nil
}

func (c *Console) cmdRepeat(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "repeat: %s\n", c.orch.Status().Repeat)
		return nil
	}
	var mode playback.RepeatMode
	switch strings.ToLower(args[0]) {
	case "none", "off":
		mode = playback.RepeatNone
	case "one", "song":
		mode = playback.RepeatOne
	case "all", "queue":
		mode = playback.RepeatAll
	default:
		return fmt.Errorf("unknown repeat mode %q (none, one, all)", args[0])
	}
	c.orch.SetRepeat(mode)
	fmt.Fprintf(c.out, "repeat: %s\n", mode)
	return nil
}

func (c *Console) cmdShuffle(args []string) error {
	st := c.orch.Status()
	enabled := !st.Shuffle
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true":
			enabled = true
		case "off", "false":
			enabled = false
		default:
			return fmt.Errorf("unknown shuffle setting %q (on, off)", args[0])
		}
	}
	c.orch.SetShuffle(enabled)
	fmt.Fprintf(c.out, "shuffle: %v\n", enabled)
	return nil
}

// cmdPrefetch requests an explicit download pass: no argument warms the
// entire queue, a count limits the pass to the first n items.
func (c *Console) cmdPrefetch(args []string) error {
	count := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("bad count %q", args[0])
		}
		count = n
	}
	c.prefetch.Kick(count)
	fmt.Fprintln(c.out, "prefetch scan requested")
	return nil
}

func (c *Console) cmdFilters(args []string) error {
	chain := strings.Join(args, " ")
	if chain == "clear" || chain == "off" {
		chain = ""
	}
	if err := c.orch.UpdateFilters(chain); err != nil {
		return err
	}
	if chain == "" {
		fmt.Fprintln(c.out, "filters cleared")
	} else {
		fmt.Fprintf(c.out, "filters: %s\n", chain)
	}
	return nil
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `commands:
  add [-r requester] <url|query|file>  queue something to play
  queue                                list pending items
  np                                   show playback status
  remove <pos>                         drop a queued item
  move <from> <to>                     reorder the queue
  skip | pause | resume                transport controls
  seek <seconds|mm:ss>                 jump within the current song
  repeat [none|one|all]                set or show repeat mode
  shuffle [on|off]                     toggle weighted shuffle
  prefetch [n]                         download the whole queue (or first n items)
  af <chain>                           set audio filters (af clear resets)
  clear                                empty the queue
  quit                                 exit
`)
}

func describeItem(it queue.Item) string {
	title := it.Title
	if title == "" {
		title = it.Content
	}
	if it.Artist != "" {
		return fmt.Sprintf("%s - %s", it.Artist, title)
	}
	return title
}

func describeStatus(it queue.Item) string {
	if it.DownloadStatus == queue.StatusDownloading {
		return fmt.Sprintf("%s %d%%", it.DownloadStatus, it.DownloadProgress)
	}
	return it.DownloadStatus
}

// parseTimestamp accepts plain seconds ("90") or mm:ss ("1:30").
func parseTimestamp(s string) (time.Duration, error) {
	if strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)
		mins, err1 := strconv.Atoi(parts[0])
		secs, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || mins < 0 || secs < 0 || secs > 59 {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		return time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", mins, secs)
}
