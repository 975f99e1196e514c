package bot

import (
	"context"
	"fmt"
	"strings"

	"marketbot/internal/downloader"
	"marketbot/internal/market"
	"marketbot/internal/scheduler"
	logx "marketbot/pkg/logx"
)

const startText = "Hello, and welcome. This bot is currently online and ready to assist you with two services: " +
	"downloading a video from a supported public URL, and displaying the latest cryptocurrency prices.\n\n" +
	"Available commands:\n" +
	"/download <link> — Send a valid video link and I will attempt to download and deliver the video to you.\n" +
	"/crypto — View the latest top cryptocurrency prices sourced from CoinGecko.\n" +
	"/updates <15m|1h|off> — Enable, disable, or adjust automatic market updates.\n\n" +
	"Example:\n" +
	"/download https://example.com/video\n\n" +
	"For any assistance, feel free to contact the administrator."

const downloadUsageText = "To proceed, please provide a video URL so I can begin processing your request. " +
	"For best results, paste the full link exactly as it appears in your browser, including http:// or https://.\n\n" +
	"Usage:\n" +
	"/download <link>\n\n" +
	"Example:\n" +
	"/download https://example.com/video"

const downloadBadURLText = "That doesn't appear to be a valid URL. Please send a link that begins with http:// or https:// and try again."

const downloadAckText = "Thank you. I have received your link and I am starting the download process now. " +
	"Depending on the website, file size, and current server load, this may take a short moment."

const downloadFailedText = "Unfortunately, I was unable to complete the download from that link. " +
	"This can happen if the website blocks automated downloads, the link is private or expired, " +
	"or the format is not currently supported. Please verify the URL and try again with a different link if necessary."

const cryptoAckText = "Please allow a moment while I retrieve the latest market data and compile a clear snapshot of the top assets."

const cryptoFailedText = "I could not retrieve market prices at the moment, most likely due to a temporary network issue or rate limiting from the data provider. " +
	"Please try again shortly."

const updatesUsageText = "To configure automatic market updates, please choose an interval.\n\n" +
	"Usage:\n" +
	"/updates 15m  — Receive an update every 15 minutes\n" +
	"/updates 1h   — Receive an update every 1 hour\n" +
	"/updates off  — Disable automatic updates"

const updatesBadIntervalText = "I didn't recognize that interval. Please use one of the following:\n" +
	"/updates 15m\n" +
	"/updates 1h\n" +
	"/updates off"

const updatesDisabledText = "Automatic market updates have been disabled for this chat. " +
	"You can still request a snapshot at any time using /crypto."

// Handlers implements the user-facing command set. Each handler sends its own
// replies, including failure substitutes; errors flow back to the dispatcher
// for logging and history only.
type Handlers struct {
	market *market.Client
	dl     *downloader.Downloader
	sched  *scheduler.Scheduler
}

func NewHandlers(mc *market.Client, dl *downloader.Downloader, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{market: mc, dl: dl, sched: sched}
}

// Commands lists everything the bot answers to, ready for Register.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "start", Description: "welcome and command overview", Handle: h.Start},
		{Name: "help", Description: "welcome and command overview", Handle: h.Start},
		{Name: "download", Description: "download a video from a URL", Handle: h.Download},
		{Name: "crypto", Description: "current market snapshot", Handle: h.Crypto},
		{Name: "updates", Description: "manage recurring market updates", Handle: h.Updates},
	}
}

func (h *Handlers) Start(ctx context.Context, req *Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, startText, nil)
	return err
}

func (h *Handlers) Download(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, downloadUsageText, nil)
		return err
	}
	url := strings.TrimSpace(req.Args[0])
	if !IsURL(url) {
		_, err := req.Adapter.SendText(ctx, req.Chat, downloadBadURLText, nil)
		return err
	}

	if _, err := req.Adapter.SendText(ctx, req.Chat, downloadAckText, nil); err != nil {
		return err
	}

	path, err := h.dl.Extract(ctx, url)
	if path != "" {
		// One removal per extraction, success or not. Extract reports partial
		// artifacts precisely so this cleanup can catch them.
		defer h.dl.Remove(path)
	}
	if err != nil {
		req.Logger.Warn("download failed", logx.String("url", url), logx.Err(err))
		_, serr := req.Adapter.SendText(ctx, req.Chat, downloadFailedText, nil)
		if serr != nil {
			return serr
		}
		return err
	}

	if _, err := req.Adapter.SendVideo(ctx, req.Chat, path, ""); err != nil {
		req.Logger.Warn("video delivery failed", logx.Err(err))
		_, _ = req.Adapter.SendText(ctx, req.Chat, downloadFailedText, nil)
		return err
	}
	return nil
}

func (h *Handlers) Crypto(ctx context.Context, req *Request) error {
	if _, err := req.Adapter.SendText(ctx, req.Chat, cryptoAckText, nil); err != nil {
		return err
	}

	snap, err := h.market.Fetch(ctx)
	if err != nil {
		req.Logger.Warn("snapshot fetch failed", logx.Err(err))
		_, serr := req.Adapter.SendText(ctx, req.Chat, cryptoFailedText, nil)
		if serr != nil {
			return serr
		}
		return err
	}

	text := market.Format(snap.Top10, snap.TopGainer, strings.ToUpper(h.market.QuoteCurrency()))
	_, err = req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func (h *Handlers) Updates(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, updatesUsageText, nil)
		return err
	}

	every, off, err := scheduler.ParseInterval(req.Args[0])
	if err != nil {
		// Unknown token changes nothing; the reply is the whole outcome.
		_, serr := req.Adapter.SendText(ctx, req.Chat, updatesBadIntervalText, nil)
		return serr
	}

	if off {
		h.sched.Disable(req.Chat.ChatID)
		_, serr := req.Adapter.SendText(ctx, req.Chat, updatesDisabledText, nil)
		return serr
	}

	if err := h.sched.Enable(req.Chat.ChatID, every); err != nil {
		req.Logger.Error("subscription enable failed", logx.Err(err))
		_, _ = req.Adapter.SendText(ctx, req.Chat, "I could not enable automatic updates right now. Please try again shortly.", nil)
		return err
	}

	confirm := fmt.Sprintf("Automatic market updates are now enabled %s. "+
		"If you would like to change the interval later, simply run /updates 15m or /updates 1h again, or use /updates off to stop.",
		scheduler.CadenceLabel(every))
	_, serr := req.Adapter.SendText(ctx, req.Chat, confirm, nil)
	return serr
}
