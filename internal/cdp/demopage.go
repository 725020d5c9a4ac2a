package cdp

import "encoding/base64"

// DemoPageHTML is a small multi-screen app exposing a fake TTS façade, for
// trying tts_inspect without the real application.
const DemoPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>tts_inspect Demo</title>
    <style>
        * { box-sizing: border-box; }
        body {
            font-family: system-ui, -apple-system, sans-serif;
            padding: 40px;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #eee;
            min-height: 100vh;
            margin: 0;
        }
        .container { max-width: 800px; margin: 0 auto; }
        h1 { color: #4ecca3; margin-bottom: 10px; }
        nav button {
            background: rgba(78, 204, 163, 0.15);
            border: 1px solid rgba(78, 204, 163, 0.4);
            color: #eee;
            padding: 8px 16px;
            border-radius: 4px;
            margin-right: 8px;
            cursor: pointer;
        }
        .screen {
            display: none;
            background: rgba(255,255,255,0.05);
            border-radius: 8px;
            padding: 20px;
            margin-top: 20px;
        }
        .screen.active { display: block; }
        .screen h2 { color: #4ecca3; margin-top: 0; }
        .hint { color: #888; margin-top: 30px; }
        code { background: rgba(0,0,0,0.3); padding: 2px 6px; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>tts_inspect Demo</h1>
        <nav>
            <button data-target="home">Home</button>
            <button data-target="lesson">Lesson</button>
            <button data-target="quiz">Quiz</button>
            <button data-target="blank">Blank</button>
        </nav>

        <section id="home" class="screen active">
            <h2>Welcome</h2>
            <p>This demo app has four screens. Switch between them with the buttons above.</p>
        </section>
        <section id="lesson" class="screen">
            <h2>Lesson one</h2>
            <p>Speech synthesis turns written text into spoken audio.</p>
            <p>Each screen is read aloud when it becomes active.</p>
        </section>
        <section id="quiz" class="screen">
            <h2>Quiz</h2>
            <p>Which screen are you on right now?</p>
        </section>
        <section id="blank" class="screen"></section>

        <p class="hint">Run <code>tts_inspect monitor</code> and press <code>Ctrl+Shift+D</code> here.</p>
    </div>

    <script>
        const screens = () => Array.from(document.querySelectorAll('.screen'));

        const ttsService = {
            currentScreenId: 'home',
            isSpeaking: false,
            pipelineCache: new Map(),

            getActiveScreen() {
                return document.querySelector('.screen.active');
            },

            extractReadableText(el) {
                if (!el) return '';
                const text = (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
                this.pipelineCache.set(el.id, text);
                return text;
            },

            getCurrentScreenSummary() {
                const el = this.getActiveScreen();
                if (!el) return null;
                const text = this.extractReadableText(el);
                return {
                    screenId: el.id,
                    contentLength: text.length,
                    preview: text.slice(0, 200),
                    paragraphs: el.querySelectorAll('p').length,
                };
            },

            speak(text, language) {
                this.isSpeaking = true;
                const done = () => { this.isSpeaking = false; };
                if (window.speechSynthesis && window.SpeechSynthesisUtterance) {
                    return new Promise((resolve) => {
                        const u = new SpeechSynthesisUtterance(text);
                        u.lang = language || ttsUI.language;
                        u.onend = u.onerror = () => { done(); resolve(); };
                        speechSynthesis.speak(u);
                    });
                }
                return new Promise((resolve) => setTimeout(() => { done(); resolve(); }, 50 * text.length));
            },
        };

        window.ttsUI = {
            language: 'en',
            ttsService,
            async testCurrentScreen() {
                const text = ttsService.extractReadableText(ttsService.getActiveScreen());
                if (text) await ttsService.speak(text, this.language);
            },
        };

        function show(id) {
            for (const el of screens()) el.classList.toggle('active', el.id === id);
            ttsService.currentScreenId = id;
            window.dispatchEvent(new CustomEvent('screenChanged', { detail: { screenId: id } }));
            console.log('[demo] screen changed to', id);
        }

        document.querySelectorAll('nav button').forEach((b) => {
            b.addEventListener('click', () => show(b.dataset.target));
        });

        console.info('[demo] tts_inspect demo loaded');
    </script>
</body>
</html>`

// DemoPageURL returns the demo page as a data URL.
func DemoPageURL() string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(DemoPageHTML))
}
