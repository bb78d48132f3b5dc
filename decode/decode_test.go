package decode

import "testing"

func TestDecodeDeterminism(t *testing.T) {
	const bits = 0x00512023 // sw x5,0(x2)
	first := Decode(bits, 64)
	second := Decode(bits, 64)
	if first != second {
		t.Fatalf("decode not deterministic: %+v vs %+v", first, second)
	}
}

func TestDecodeStore(t *testing.T) {
	inst := Decode(0x00512023, 64) // sw x5,0(x2)
	if inst.Name != "sw" {
		t.Fatalf("Name = %q, want sw", inst.Name)
	}
	if inst.Rs1 != 2 || inst.Rs2 != 5 || inst.Imm != 0 {
		t.Errorf("sw fields = rs1=%d rs2=%d imm=%d", inst.Rs1, inst.Rs2, inst.Imm)
	}
	if inst.Flags&HasStore == 0 {
		t.Error("expected HasStore")
	}
	if inst.Flags&HasLoad != 0 {
		t.Error("did not expect HasLoad on a store")
	}
}

func TestDecodeAddi(t *testing.T) {
	// addi x2, x0, 0x200 -> imm=0x200, rs1=0, rd=2
	inst := Decode(0x20000113, 64)
	if inst.Name != "addi" {
		t.Fatalf("Name = %q, want addi", inst.Name)
	}
	if inst.Rd != 2 || inst.Rs1 != 0 || inst.Imm != 0x200 {
		t.Errorf("addi fields = rd=%d rs1=%d imm=%#x", inst.Rd, inst.Rs1, inst.Imm)
	}
}

func TestDecodeCSRRWRdZeroIsStoreOnly(t *testing.T) {
	inst := Decode(0x30529073, 64)
	if inst.Name != "csrrw" {
		t.Fatalf("Name = %q, want csrrw", inst.Name)
	}
	if inst.Rd != 0 {
		t.Fatalf("Rd = %d, want 0", inst.Rd)
	}
	if inst.Flags&HasCSRStore == 0 {
		t.Error("expected HasCSRStore")
	}
	if inst.Flags&HasCSRLoad != 0 {
		t.Error("rd==0 csrrw must be store-only, got HasCSRLoad set")
	}
}

func TestDecodeCSRRSRs1ZeroIsLoadOnly(t *testing.T) {
	// csrrs x4, mstatus(0x300), x0
	inst := Decode(0x30002273, 64)
	if inst.Name != "csrrs" {
		t.Fatalf("Name = %q, want csrrs", inst.Name)
	}
	if inst.Rs1 != 0 {
		t.Fatalf("Rs1 = %d, want 0", inst.Rs1)
	}
	if inst.Flags&HasCSRLoad == 0 {
		t.Error("expected HasCSRLoad")
	}
	if inst.Flags&HasCSRStore != 0 {
		t.Error("rs1==0 csrrs must be load-only, got HasCSRStore set")
	}
}

func TestDecodeCSRRSNonZeroRs1IsLoadAndStore(t *testing.T) {
	inst := Decode(0x30022273, 64) // csrrs x4, mstatus, x4
	if inst.Flags&HasCSRLoad == 0 || inst.Flags&HasCSRStore == 0 {
		t.Errorf("expected both HasCSRLoad and HasCSRStore, got flags=%b", inst.Flags)
	}
}

func TestDecodeXlenGating64BitOnly(t *testing.T) {
	// ld x1, 0(x2): opcode 0x03, funct3 0x3
	const ldBits = 0x0001_3083
	at64 := Decode(ldBits, 64)
	if at64.Op == OpInvalid {
		t.Fatalf("ld at xlen=64 decoded as invalid")
	}
	at32 := Decode(ldBits, 32)
	if at32.Op != OpInvalid {
		t.Errorf("ld at xlen=32 = %+v, want OpInvalid", at32)
	}
}

func TestDecodeArithImmWGatedAt32(t *testing.T) {
	// addiw x1, x2, 1: opcode 0x1b, funct3 0, rd=1, rs1=2, imm=1
	const addiw = 0x0011_009b
	at64 := Decode(addiw, 64)
	if at64.Name != "addiw" {
		t.Fatalf("Name = %q, want addiw (bits=%#x)", at64.Name, uint32(addiw))
	}
	if at64.Rd != 1 || at64.Rs1 != 2 || at64.Imm != 1 {
		t.Errorf("addiw fields = rd=%d rs1=%d imm=%d", at64.Rd, at64.Rs1, at64.Imm)
	}
	if Decode(addiw, 32).Op != OpInvalid {
		t.Error("addiw at xlen=32 should be OpInvalid")
	}
}

func TestDecodeUnknownIsInvalid(t *testing.T) {
	inst := Decode(0x00000000, 64)
	if inst.Op != OpInvalid || inst.Name != "" {
		t.Errorf("Decode(0) = %+v, want Invalid", inst)
	}
}

func TestDecodeBranch(t *testing.T) {
	// beq x1, x2, 0
	inst := Decode(0x00208063, 64)
	if inst.Name != "beq" {
		t.Fatalf("Name = %q, want beq", inst.Name)
	}
	if inst.Flags&HasRS1 == 0 || inst.Flags&HasRS2 == 0 {
		t.Error("branch must have both source registers")
	}
	if inst.Flags&HasRD != 0 {
		t.Error("branch must not have a destination register")
	}
}

func TestCacheMemoizes(t *testing.T) {
	c, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	const bits = 0x00512023
	first := c.Decode(bits, 64)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after first decode", c.Len())
	}
	second := c.Decode(bits, 64)
	if first != second {
		t.Errorf("cached decode mismatch: %+v vs %+v", first, second)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want still 1 after repeat decode", c.Len())
	}
}
