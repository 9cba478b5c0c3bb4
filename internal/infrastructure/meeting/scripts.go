package meeting

import (
	"encoding/json"
	"fmt"
)

// fillNameScript types the bot name into the pre-join name field if the page shows one.
func fillNameScript(name string) string {
	quoted, _ := json.Marshal(name)
	return fmt.Sprintf(`(() => {
  const input = document.querySelector('input[aria-label*="name" i], input[placeholder*="name" i]');
  if (!input) return false;
  input.focus();
  input.value = %s;
  input.dispatchEvent(new Event('input', { bubbles: true }));
  return true;
})()`, quoted)
}

const muteDevicesScript = `(() => {
  const selectors = [
    'button[aria-label*="camera" i], button[data-is-muted="false"][aria-label*="video" i]',
    'button[aria-label*="microphone" i], button[data-is-muted="false"][aria-label*="mic" i]',
  ];
  let muted = 0;
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn && btn.getAttribute('data-is-muted') === 'false') {
      btn.click();
      muted++;
    }
  }
  return muted;
})()`

const clickJoinScript = `(() => {
  const labels = ['Join now', 'Ask to join', 'Join'];
  const buttons = Array.from(document.querySelectorAll('button'));
  for (const label of labels) {
    const btn = buttons.find(b => (b.innerText || '').trim() === label);
    if (btn) { btn.click(); return true; }
  }
  const fallback = document.querySelector('[data-idom-class*="join"], button[jsname="Qx7uuf"]');
  if (fallback) { fallback.click(); return true; }
  return false;
})()`

const waitingRoomScript = `document.body.innerText.includes('Waiting for the host')`

const admittedSelector = `[data-participant-id], [data-self-name]`

// startRecorderScript mixes every <audio>/<video> element into one stream and records it with
// MediaRecorder; chunks are queued as base64 strings for drainAudioScript.
const startRecorderScript = `(() => {
  if (window.__botRecorder) return true;
  window.__botChunks = [];
  const connected = new WeakSet();
  const ctx = new AudioContext();
  const dest = ctx.createMediaStreamDestination();
  const connect = () => {
    document.querySelectorAll('audio, video').forEach(el => {
      if (connected.has(el)) return;
      try {
        const src = ctx.createMediaElementSource(el);
        src.connect(dest);
        src.connect(ctx.destination);
        connected.add(el);
      } catch (e) {}
    });
  };
  connect();
  const observer = new MutationObserver(connect);
  observer.observe(document.body, { childList: true, subtree: true });

  const rec = new MediaRecorder(dest.stream, { mimeType: 'audio/webm;codecs=opus' });
  rec.ondataavailable = ev => {
    if (!ev.data || ev.data.size === 0) return;
    const reader = new FileReader();
    reader.onloadend = () => {
      const s = String(reader.result || '');
      const i = s.indexOf(',');
      if (i >= 0) window.__botChunks.push(s.slice(i + 1));
    };
    reader.readAsDataURL(ev.data);
  };
  rec.start(1000);
  window.__botRecorder = rec;
  window.__botStopRecording = () => {
    if (rec.state !== 'inactive') rec.stop();
    ctx.close();
    observer.disconnect();
  };
  return true;
})()`

const drainAudioScript = `(() => {
  const chunks = window.__botChunks || [];
  window.__botChunks = [];
  return chunks;
})()`

const stopRecorderScript = `(() => {
  if (window.__botStopRecording) window.__botStopRecording();
  return true;
})()`

const enableCaptionsScript = `(() => {
  const btn = document.querySelector('button[aria-label*="caption" i], button[aria-label*="subtitle" i]');
  if (!btn) return false;
  btn.click();
  return true;
})()`

// inspectScript reports whether the meeting is over and how many participants the page shows.
const inspectScript = `(() => {
  const text = document.body ? document.body.innerText : '';
  const ended = ['You left the meeting', 'Meeting ended', 'Return to home screen'].some(t => text.includes(t));
  let count = 0;
  const el = document.querySelector('[data-participant-count], [aria-label*="participant" i]');
  if (el) {
    const m = (el.textContent || el.getAttribute('aria-label') || '').match(/\d+/);
    if (m) count = parseInt(m[0], 10);
  }
  return { ended, participants: count };
})()`

const participantsScript = `(() => {
  const out = [];
  document.querySelectorAll('[data-participant-id] [data-self-name], [data-participant-id] [data-participant-name]').forEach(el => {
    const name = (el.textContent || '').trim();
    if (name) out.push({ displayName: name, isHost: el.closest('[data-is-host]') !== null });
  });
  return out;
})()`

const clickLeaveScript = `(() => {
  const btn = document.querySelector('button[aria-label*="Leave" i]');
  if (!btn) return false;
  btn.click();
  return true;
})()`
