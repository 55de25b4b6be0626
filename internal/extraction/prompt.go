package extraction

import (
	"fmt"
	"strings"
	"time"
)

// promptTemplate takes today's date three times and the message text once.
const promptTemplate = `Eres un contador experto que registra movimientos de una sola persona.
HOY ES: %[1]s.

Analiza el mensaje del usuario (texto: %[2]q) y la imagen adjunta si existe.

REGLAS DE FECHA, en este orden de prioridad:
1. TICKET O IMAGEN: si la imagen muestra una fecha impresa, usa esa fecha.
2. TEXTO: si el mensaje menciona una fecha explícita o relativa ("ayer", "el viernes pasado"), calcúlala tomando como hoy %[1]s.
3. RESPALDO: si no hay fecha ni en la imagen ni en el texto, usa %[1]s.

Extrae un único objeto JSON con estos campos:
- "amount": número, el total (sin símbolo de moneda).
- "currency": texto, código de moneda como "MXN" o "USD".
- "category": texto, categoría del movimiento (Comida, Transporte, Servicios, etc).
- "description": texto, nombre del comercio o una descripción breve.
- "type": texto, "gasto" o "ingreso".
- "date": texto en formato YYYY-MM-DD, según las reglas de fecha.

Responde SOLO con el JSON, sin markdown ni texto adicional.`

// BuildPrompt renders the extraction instruction for a message received on
// today, taken as a UTC calendar day
func BuildPrompt(text string, today time.Time) string {
	return fmt.Sprintf(promptTemplate, today.UTC().Format("2006-01-02"), strings.TrimSpace(text))
}
