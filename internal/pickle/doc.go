// Package pickle decodes Python pickle streams (protocols 0 through 5) into a
// sequence of typed instructions.
//
// The decoder performs no interpretation. It turns bytes into Op values,
// validating operand framing as it goes: every declared length is checked
// against the remaining input before anything is allocated, so a crafted
// length field cannot make the decoder allocate more than the stream holds.
//
// Unknown opcode bytes are surfaced as UnknownOpcode and decoding stops;
// they are never skipped.
package pickle
