package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"duocall/internal/core/domain"
	"duocall/internal/core/services"
	signalinfra "duocall/internal/infrastructure/signal"
	webrtcinfra "duocall/internal/infrastructure/webrtc"
	"duocall/pkg/retry"

	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
)

var (
	flagToken    string
	flagSTUN     []string
	flagNoCamera bool
	flagNoMic    bool
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Join a room and call the other participant",
	Long: `Join a room and negotiate a call with the other participant.

While the call runs, type a command and press enter:
  m  mute / unmute the microphone
  c  turn the camera off / on
  s  start / stop screen sharing
  q  hang up

Examples:
  peer call --user alice --password password123 --room room1
  peer call --token <jwt>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return runCall(ctx, cmd.InOrStdin())
	},
}

func init() {
	callCmd.Flags().StringVarP(&flagToken, "token", "t", "", "signaling token (skips login)")
	callCmd.Flags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "ICE server URLs")
	callCmd.Flags().BoolVar(&flagNoCamera, "no-camera", false, "behave as if no camera is attached")
	callCmd.Flags().BoolVar(&flagNoMic, "no-mic", false, "behave as if no microphone is attached")
}

func runCall(ctx context.Context, in io.Reader) error {
	log := newLogger()
	defer log.Sync()

	token := flagToken
	if token == "" {
		var err error
		if token, err = login(ctx); err != nil {
			return err
		}
	}

	cfg := webrtcinfra.EngineConfig{
		Media: webrtcinfra.SyntheticSource{HasMicrophone: !flagNoMic, HasCamera: !flagNoCamera},
	}
	if len(flagSTUN) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: flagSTUN}}
	}
	engine, err := webrtcinfra.NewEngine(cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Media comes first: without it there is nothing to negotiate.
	stream, err := engine.AcquireLocalMedia(ctx)
	switch {
	case errors.Is(err, domain.ErrMediaAccessDenied):
		return errors.New("access to camera and microphone was denied")
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return errors.New("no camera or microphone available")
	case err != nil:
		return err
	}

	engine.OnStateChange(func(s webrtcinfra.State) {
		printStatus("call", string(s))
	})
	engine.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		printSuccess(fmt.Sprintf("receiving %s from peer", track.Kind()))
		go drain(track)
	})

	client, err := signalinfra.Dial(ctx, signalinfra.ClientOptions{
		ServerURL: flagServer,
		Token:     token,
		Retry:     retry.DefaultConfig(),
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Println(boxStyle.Render(titleStyle.Render("duocall") + "\n" + mutedStyle.Render("joined, waiting for the other participant")))
	printHint("commands: m (mic)  c (camera)  s (screen)  q (hang up)")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readCommands(ctx, in, engine, stream, cancel)

	err = services.NewCallService(client, engine, log).Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		printSuccess("call ended")
		return nil
	case errors.Is(err, domain.ErrRoomFull):
		return errors.New("room is full")
	case errors.Is(err, services.ErrSignalingClosed):
		return errors.New("signaling connection closed")
	}
	return err
}

func drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// controls holds the toggles driven from stdin.
type controls struct {
	engine   *webrtcinfra.Engine
	camera   *webrtcinfra.LocalTrack
	screen   *webrtcinfra.LocalStream
	micOn    bool
	cameraOn bool
	screenOn bool
}

func readCommands(ctx context.Context, in io.Reader, engine *webrtcinfra.Engine, stream *webrtcinfra.LocalStream, hangUp func()) {
	c := &controls{engine: engine, camera: stream.Video(), micOn: true, cameraOn: true}
	defer func() {
		if c.screen != nil {
			c.screen.Stop()
		}
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "m":
			c.toggleMic()
		case "c":
			c.toggleCamera()
		case "s":
			c.toggleScreen(ctx)
		case "q":
			hangUp()
			return
		case "":
		default:
			printHint("commands: m (mic)  c (camera)  s (screen)  q (hang up)")
		}
	}
}

func (c *controls) toggleMic() {
	on := !c.micOn
	if err := c.engine.SetTrackEnabled(webrtc.RTPCodecTypeAudio, on); err != nil {
		printError(err.Error())
		return
	}
	c.micOn = on
	printStatus("mic", onOff(on))
}

func (c *controls) toggleCamera() {
	on := !c.cameraOn
	if c.screenOn {
		// The camera track is not on the wire while sharing.
		c.camera.SetEnabled(on)
	} else if err := c.engine.SetTrackEnabled(webrtc.RTPCodecTypeVideo, on); err != nil {
		printError(err.Error())
		return
	}
	c.cameraOn = on
	printStatus("camera", onOff(on))
}

func (c *controls) toggleScreen(ctx context.Context) {
	if c.screenOn {
		if err := c.engine.ReplaceOutboundVideoTrack(c.camera); err != nil {
			printError(err.Error())
			return
		}
		c.screen.Stop()
		c.screen = nil
		c.screenOn = false
		printStatus("screen", "off")
		return
	}

	screen, err := webrtcinfra.ScreenSource{}.Open(ctx)
	if err != nil {
		printError(err.Error())
		return
	}
	if err := c.engine.ReplaceOutboundVideoTrack(screen.Video()); err != nil {
		screen.Stop()
		if errors.Is(err, domain.ErrNoActiveVideoSender) {
			printWarning("no video is being sent yet")
			return
		}
		printError(err.Error())
		return
	}
	c.screen = screen
	c.screenOn = true
	printStatus("screen", "on")
}

func onOff(on bool) string {
	if on {
		return successStyle.Render("on")
	}
	return mutedStyle.Render("off")
}
